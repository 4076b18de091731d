package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/listingbot/internal/resolver"
)

// EventIDPrefix marks a listing assembled from several markets of one event.
const EventIDPrefix = "event:"

const defaultPageSize = 100

// MarketLister is the subset of GammaClient the Source needs.
type MarketLister interface {
	ListMarkets(ctx context.Context, limit, offset int) (markets []APIMarket, records int, err error)
}

// Source pages through Gamma listings and emits one RawMarket per listing.
// Markets that belong to the same live event are folded into a single
// multi-option listing.
type Source struct {
	client MarketLister
	logger *slog.Logger
	now    func() time.Time
}

// NewSource creates a Source reading from client.
func NewSource(client MarketLister, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		client: client,
		logger: logger.With(slog.String("component", "polymarket_source")),
		now:    time.Now,
	}
}

// Fetch returns the listings on the page at cursor and the cursor of the
// next page. An empty next cursor means the listing is exhausted. Grouping
// happens within the fetched page.
func (s *Source) Fetch(ctx context.Context, cursor string, limit int) ([]resolver.RawMarket, string, error) {
	offset, err := parseCursor(cursor)
	if err != nil {
		return nil, "", err
	}
	if limit <= 0 {
		limit = defaultPageSize
	}

	page, records, err := s.client.ListMarkets(ctx, limit, offset)
	if err != nil {
		return nil, "", err
	}
	next := ""
	if records >= limit {
		next = strconv.Itoa(offset + records)
	}

	now := s.now()
	var (
		order   []string
		groups  = make(map[string][]APIMarket)
		events  = make(map[string]APIEvent)
		dropped int
	)
	for _, m := range page {
		if !s.listable(m, now) {
			dropped++
			continue
		}
		live := m.liveEvents()
		m.Events = live

		key := "market:" + m.ID
		if len(live) > 0 && live[0].ID != "" {
			key = EventIDPrefix + live[0].ID
			if _, ok := events[key]; !ok {
				events[key] = live[0]
			}
		}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], m)
	}

	out := make([]resolver.RawMarket, 0, len(order))
	for _, key := range order {
		members := groups[key]
		if len(members) == 1 {
			out = append(out, single(members[0]))
			continue
		}
		out = append(out, grouped(events[key], members))
	}

	s.logger.DebugContext(ctx, "fetched listings",
		slog.Int("offset", offset),
		slog.Int("records", records),
		slog.Int("markets", len(page)),
		slog.Int("dropped", dropped),
		slog.Int("listings", len(out)),
	)
	return out, next, nil
}

// listable reports whether m is open, has a question and has not expired.
func (s *Source) listable(m APIMarket, now time.Time) bool {
	if strings.TrimSpace(m.Question) == "" {
		return false
	}
	if !bool(m.Active) || bool(m.Closed) || bool(m.Archived) {
		return false
	}
	if exp, ok := (resolver.RawMarket{EndDate: m.EndDate}).ExpiresAt(); ok && !exp.After(now) {
		return false
	}
	return true
}

func parseCursor(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(cursor)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("polymarket: invalid cursor %q", cursor)
	}
	return n, nil
}

func toRawEvent(ev APIEvent) resolver.Event {
	return resolver.Event{ID: ev.ID, Title: ev.Title, Image: ev.Image, Icon: ev.Icon}
}

// single maps a standalone market. Its live events are carried along so the
// resolver can still see them.
func single(m APIMarket) resolver.RawMarket {
	raw := resolver.RawMarket{
		ID:       m.ID,
		Question: strings.TrimSpace(m.Question),
		EndDate:  m.EndDate,
		Outcomes: m.Outcomes,
		Image:    m.Image,
		Icon:     m.Icon,
	}
	explicit := m.Category
	tags := append([]APITag(nil), m.Tags...)
	for _, ev := range m.Events {
		raw.Events = append(raw.Events, toRawEvent(ev))
		if explicit == "" {
			explicit = ev.Category
		}
		tags = append(tags, ev.Tags...)
	}
	raw.Category = Categorize(explicit, tags, raw.Question)
	return raw
}

// grouped folds the member markets of ev into one multi-option listing. Each
// member contributes an event outcome (its group title and icon) and an
// option market (its question and icon).
func grouped(ev APIEvent, members []APIMarket) resolver.RawMarket {
	first := members[0]
	rawEv := toRawEvent(ev)

	raw := resolver.RawMarket{
		ID:               EventIDPrefix + ev.ID,
		Question:         strings.TrimSpace(ev.Title),
		EndDate:          ev.EndDate,
		Image:            ev.Image,
		Icon:             ev.Icon,
		IsMultipleOption: resolver.Flag(true),
		IsEvent:          resolver.Flag(true),
	}
	if raw.Question == "" {
		raw.Question = strings.TrimSpace(first.Question)
	}

	eventDated := raw.EndDate != ""
	var labels []string
	for _, m := range members {
		if title := strings.TrimSpace(m.GroupItemTitle); title != "" {
			rawEv.Outcomes = append(rawEv.Outcomes, resolver.Outcome{ID: m.ID, Title: title, Icon: m.Icon})
			labels = append(labels, title)
		}
		raw.OptionMarkets = append(raw.OptionMarkets, resolver.OptionMarket{
			ID:       m.ID,
			Question: strings.TrimSpace(m.Question),
			Icon:     m.Icon,
		})
		if !eventDated && laterDate(m.EndDate, raw.EndDate) {
			raw.EndDate = m.EndDate
		}
	}
	raw.Events = []resolver.Event{rawEv}
	if len(labels) > 0 {
		raw.Outcomes = resolver.NewOutcomes(labels...)
	}

	explicit := ev.Category
	if explicit == "" {
		explicit = first.Category
	}
	raw.Category = Categorize(explicit, append(append([]APITag(nil), ev.Tags...), first.Tags...), raw.Question)
	return raw
}

// laterDate reports whether a parses to a later expiry than b, or b does
// not parse at all.
func laterDate(a, b string) bool {
	ta, okA := (resolver.RawMarket{EndDate: a}).ExpiresAt()
	tb, okB := (resolver.RawMarket{EndDate: b}).ExpiresAt()
	return okA && (!okB || ta.After(tb))
}
