package domain

import (
	"fmt"
	"strings"
	"time"
)

// MarketStatus is the lifecycle state of a market inside the listing pipeline.
type MarketStatus string

const (
	StatusNew             MarketStatus = "new"
	StatusPendingInitial  MarketStatus = "pending_initial"
	StatusApproved        MarketStatus = "approved"
	StatusRejected        MarketStatus = "rejected"
	StatusTimeout         MarketStatus = "timeout"
	StatusBannerGenerated MarketStatus = "banner_generated"
	StatusPendingFinal    MarketStatus = "pending_final"
	StatusFinalApproved   MarketStatus = "final_approved"
	StatusFinalRejected   MarketStatus = "final_rejected"
	StatusFinalTimeout    MarketStatus = "final_timeout"
	StatusDeployed        MarketStatus = "deployed"
	StatusFailed          MarketStatus = "failed"
)

// transitions lists the forward edges of the status machine. Any
// non-terminal status may additionally move to StatusFailed.
var transitions = map[MarketStatus][]MarketStatus{
	StatusNew:             {StatusPendingInitial},
	StatusPendingInitial:  {StatusApproved, StatusRejected, StatusTimeout},
	StatusApproved:        {StatusBannerGenerated},
	StatusBannerGenerated: {StatusPendingFinal},
	StatusPendingFinal:    {StatusFinalApproved, StatusFinalRejected, StatusFinalTimeout},
	StatusFinalApproved:   {StatusDeployed},
}

// Terminal reports whether no further transition is possible from s.
func (s MarketStatus) Terminal() bool {
	_, ok := transitions[s]
	return !ok
}

// Valid reports whether s is a known status.
func (s MarketStatus) Valid() bool {
	if s == StatusFailed {
		return true
	}
	if _, ok := transitions[s]; ok {
		return true
	}
	for _, next := range transitions {
		for _, n := range next {
			if n == s {
				return true
			}
		}
	}
	return false
}

// CheckTransition returns ErrInvalidTransition unless from -> to is an
// allowed edge.
func CheckTransition(from, to MarketStatus) error {
	next, ok := transitions[from]
	if !ok {
		return fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, from)
	}
	if to == StatusFailed {
		return nil
	}
	for _, n := range next {
		if n == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// MarketKind is binary or multi-option.
type MarketKind string

const (
	KindBinary   MarketKind = "binary"
	KindMultiple MarketKind = "multiple"
)

// OptionImage is one option label with its resolved icon.
type OptionImage struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// Market is a listing candidate as persisted by the pipeline. The resolved
// fields (Kind, Options, banner and option images) are written once at
// ingestion; the remaining fields accumulate as the market moves forward.
type Market struct {
	ID           string        `json:"id"`
	Question     string        `json:"question"`
	Category     string        `json:"category"`
	Kind         MarketKind    `json:"kind"`
	Options      []string      `json:"options"`
	ExpiresAt    *time.Time    `json:"expires_at,omitempty"`
	EventID      string        `json:"event_id,omitempty"`
	EventTitle   string        `json:"event_title,omitempty"`
	BannerImage  string        `json:"banner_image,omitempty"`
	BannerIcon   string        `json:"banner_icon,omitempty"`
	OptionImages []OptionImage `json:"option_images"`

	Status       MarketStatus `json:"status"`
	StatusReason string       `json:"status_reason,omitempty"`
	MessageID    string       `json:"message_id,omitempty"`

	BannerPath    string `json:"banner_path,omitempty"`
	BannerURL     string `json:"banner_url,omitempty"`
	AssetURL      string `json:"asset_url,omitempty"`
	AssetRevision string `json:"asset_revision,omitempty"`
	TxHash        string `json:"tx_hash,omitempty"`
	OnchainID     string `json:"onchain_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SafeID returns the market id with path-hostile characters replaced, for
// use in object keys and file names.
func (m Market) SafeID() string {
	return SafeID(m.ID)
}

// SafeID replaces '/', ':' and '?' in id with underscores.
func SafeID(id string) string {
	return strings.NewReplacer("/", "_", ":", "_", "?", "_").Replace(id)
}

// StatusEvent is published whenever a market changes status.
type StatusEvent struct {
	MarketID string       `json:"market_id"`
	Question string       `json:"question,omitempty"`
	From     MarketStatus `json:"from"`
	To       MarketStatus `json:"to"`
	Reason   string       `json:"reason,omitempty"`
	RunID    string       `json:"run_id,omitempty"`
	At       time.Time    `json:"at"`
}

// Channels used on the SignalBus.
const (
	ChannelStatus = "listing:status"
	ChannelRuns   = "listing:runs"
)
