package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/alanyoungcy/listingbot/internal/domain"
	"github.com/alanyoungcy/listingbot/internal/resolver"
)

type pagedSource struct {
	mu    sync.Mutex
	pages [][]resolver.RawMarket
	err   error
	calls int
}

func (s *pagedSource) Fetch(_ context.Context, cursor string, _ int) ([]resolver.RawMarket, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, "", s.err
	}
	i := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil {
			return nil, "", err
		}
		i = n
	}
	if i >= len(s.pages) {
		return nil, "", nil
	}
	next := ""
	if i+1 < len(s.pages) {
		next = strconv.Itoa(i + 1)
	}
	return s.pages[i], next, nil
}

type memMarkets struct {
	mu    sync.Mutex
	rows  map[string]domain.Market
	order []string

	// failures queues errors returned by Transition, by target status.
	failures map[domain.MarketStatus][]error
}

func newMemMarkets() *memMarkets {
	return &memMarkets{
		rows:     make(map[string]domain.Market),
		failures: make(map[domain.MarketStatus][]error),
	}
}

// failTransitions makes the next transitions into status to return errs,
// one per call.
func (s *memMarkets) failTransitions(to domain.MarketStatus, errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[to] = append(s.failures[to], errs...)
}

func (s *memMarkets) Insert(_ context.Context, m domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[m.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.rows[m.ID] = m
	s.order = append(s.order, m.ID)
	return nil
}

func (s *memMarkets) Get(_ context.Context, id string) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.rows[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (s *memMarkets) Exists(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rows[id]
	return ok, nil
}

func (s *memMarkets) List(_ context.Context, f domain.MarketFilter) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Market
	for _, id := range s.order {
		m := s.rows[id]
		if f.Status != "" && m.Status != f.Status {
			continue
		}
		out = append(out, m)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (s *memMarkets) Transition(_ context.Context, m domain.Market, from domain.MarketStatus) error {
	if err := domain.CheckTransition(from, m.Status); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if q := s.failures[m.Status]; len(q) > 0 {
		s.failures[m.Status] = q[1:]
		return q[0]
	}
	cur, ok := s.rows[m.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Status != from {
		return domain.ErrStaleStatus
	}
	s.rows[m.ID] = m
	return nil
}

func (s *memMarkets) Update(_ context.Context, m domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.rows[m.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Status != m.Status {
		return domain.ErrStaleStatus
	}
	s.rows[m.ID] = m
	return nil
}

func (s *memMarkets) CountByStatus(_ context.Context) (map[domain.MarketStatus]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.MarketStatus]int64)
	for _, m := range s.rows {
		out[m.Status]++
	}
	return out, nil
}

func (s *memMarkets) status(id string) domain.MarketStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[id].Status
}

func (s *memMarkets) get(id string) domain.Market {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[id]
}

type memApprovals struct {
	mu     sync.Mutex
	events []domain.ApprovalEvent
}

func (s *memApprovals) Create(_ context.Context, ev domain.ApprovalEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *memApprovals) Pending(_ context.Context, marketID string, stage domain.ApprovalStage) (domain.ApprovalEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.events) - 1; i >= 0; i-- {
		ev := s.events[i]
		if ev.MarketID == marketID && ev.Stage == stage && ev.Status == domain.ApprovalPending {
			return ev, nil
		}
	}
	return domain.ApprovalEvent{}, domain.ErrNotFound
}

func (s *memApprovals) Resolve(_ context.Context, ev domain.ApprovalEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.events {
		if s.events[i].ID == ev.ID {
			s.events[i] = ev
			return nil
		}
	}
	return domain.ErrNotFound
}

func (s *memApprovals) ListByMarket(_ context.Context, marketID string) ([]domain.ApprovalEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ApprovalEvent
	for _, ev := range s.events {
		if ev.MarketID == marketID {
			out = append(out, ev)
		}
	}
	return out, nil
}

// backdate moves every pending event of stage into the past.
func (s *memApprovals) backdate(stage domain.ApprovalStage, by func(domain.ApprovalEvent) domain.ApprovalEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, ev := range s.events {
		if ev.Stage == stage && ev.Status == domain.ApprovalPending {
			s.events[i] = by(ev)
		}
	}
}

type memRuns struct {
	mu   sync.Mutex
	runs []domain.PipelineRun
}

func (s *memRuns) Create(_ context.Context, run domain.PipelineRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	return nil
}

func (s *memRuns) Finish(_ context.Context, run domain.PipelineRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.runs {
		if s.runs[i].ID == run.ID {
			s.runs[i] = run
			return nil
		}
	}
	return domain.ErrNotFound
}

func (s *memRuns) Latest(_ context.Context) (domain.PipelineRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.runs) == 0 {
		return domain.PipelineRun{}, domain.ErrNotFound
	}
	return s.runs[len(s.runs)-1], nil
}

func (s *memRuns) List(_ context.Context, _ domain.ListOpts) ([]domain.PipelineRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.PipelineRun(nil), s.runs...), nil
}

// fakeChat records posts and bot reactions; human reactions are added by
// the test through vote.
type fakeChat struct {
	mu      sync.Mutex
	posts   map[string]domain.ChatMessage
	bot     map[string][]string
	human   map[string]map[string][]string
	seq     int
	postErr error
	readErr error
}

func newFakeChat() *fakeChat {
	return &fakeChat{
		posts: make(map[string]domain.ChatMessage),
		bot:   make(map[string][]string),
		human: make(map[string]map[string][]string),
	}
}

func (c *fakeChat) Post(_ context.Context, msg domain.ChatMessage) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.postErr != nil {
		return "", c.postErr
	}
	c.seq++
	id := fmt.Sprintf("msg-%d", c.seq)
	c.posts[id] = msg
	return id, nil
}

func (c *fakeChat) Reactions(_ context.Context, messageID string) (map[string][]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return nil, c.readErr
	}
	if _, ok := c.posts[messageID]; !ok {
		return nil, domain.ErrNotFound
	}
	out := make(map[string][]string)
	for name, users := range c.human[messageID] {
		out[name] = append([]string(nil), users...)
	}
	return out, nil
}

func (c *fakeChat) React(_ context.Context, messageID, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bot[messageID] = append(c.bot[messageID], name)
	return nil
}

func (c *fakeChat) Delete(_ context.Context, messageID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.posts, messageID)
	return nil
}

func (c *fakeChat) vote(messageID, name, user string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.human[messageID] == nil {
		c.human[messageID] = make(map[string][]string)
	}
	c.human[messageID][name] = append(c.human[messageID][name], user)
}

func (c *fakeChat) message(id string) domain.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.posts[id]
}

func (c *fakeChat) botReactions(id string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := append([]string(nil), c.bot[id]...)
	sort.Strings(out)
	return out
}

type fakeImages struct {
	mu      sync.Mutex
	prompts []string
	err     error
}

func (g *fakeImages) Generate(_ context.Context, prompt string) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	g.prompts = append(g.prompts, prompt)
	return []byte("\x89PNG banner"), nil
}

type memBanners struct {
	mu    sync.Mutex
	files map[string][]byte
}

func (s *memBanners) Stage(_ context.Context, marketID string, png []byte) (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.files == nil {
		s.files = make(map[string][]byte)
	}
	path := "banners/staging/" + domain.SafeID(marketID) + ".png"
	s.files[path] = png
	return path, "https://staging.test/" + path, nil
}

func (s *memBanners) Load(_ context.Context, path string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return data, nil
}

type fakeAssets struct {
	mu        sync.Mutex
	published map[string][]byte
	err       error
}

func (a *fakeAssets) Publish(_ context.Context, path string, data []byte) (domain.Asset, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return domain.Asset{}, a.err
	}
	if a.published == nil {
		a.published = make(map[string][]byte)
	}
	a.published[path] = data
	return domain.Asset{URL: "https://assets.test/" + path, Revision: "rev-1"}, nil
}

type fakeChain struct {
	mu        sync.Mutex
	submitted []domain.ChainMarket
	err       error
}

func (c *fakeChain) Submit(_ context.Context, m domain.ChainMarket) (domain.ChainReceipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitted = append(c.submitted, m)
	if c.err != nil {
		return domain.ChainReceipt{TxHash: "0xdead"}, c.err
	}
	return domain.ChainReceipt{TxHash: "0xabc", BlockNumber: 7, MarketID: "42"}, nil
}

type recordingBus struct {
	mu       sync.Mutex
	messages map[string][][]byte
}

func (b *recordingBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.messages == nil {
		b.messages = make(map[string][][]byte)
	}
	b.messages[channel] = append(b.messages[channel], payload)
	return nil
}

func (b *recordingBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("not supported")
}

func (b *recordingBus) count(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.messages[channel])
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
	last   map[string]string
}

func (n *recordingNotifier) Notify(_ context.Context, event, _, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.last == nil {
		n.last = make(map[string]string)
	}
	n.events = append(n.events, event)
	n.last[event] = message
	return nil
}

func (n *recordingNotifier) message(event string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.last[event]
}
