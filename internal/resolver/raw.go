package resolver

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// RawMarket is a market record as delivered by the market source. Its shape
// is loosely typed upstream; the custom decoders below turn the ambiguous
// fields into a strongly typed form once, at the boundary.
type RawMarket struct {
	ID            string                    `json:"id"`
	Question      string                    `json:"question"`
	Category      string                    `json:"category,omitempty"`
	EndDate       string                    `json:"endDate,omitempty"`
	Expiry        int64                     `json:"expiry,omitempty"`
	Outcomes      Outcomes                  `json:"outcomes"`
	Image         string                    `json:"image,omitempty"`
	Icon          string                    `json:"icon,omitempty"`
	Events        LenientList[Event]        `json:"events,omitempty"`
	OptionMarkets LenientList[OptionMarket] `json:"option_markets,omitempty"`

	IsBinary         Hint `json:"is_binary"`
	IsMultipleOption Hint `json:"is_multiple_option"`
	IsEvent          Hint `json:"is_event"`
}

// epochMillisThreshold separates epoch seconds from epoch milliseconds.
const epochMillisThreshold = 1e10

// ExpiresAt returns the market expiry from endDate (RFC 3339 or a bare
// date) or, failing that, the numeric expiry in epoch seconds or
// milliseconds.
func (r RawMarket) ExpiresAt() (time.Time, bool) {
	if s := strings.TrimSpace(r.EndDate); s != "" {
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), true
			}
		}
	}
	switch {
	case r.Expiry <= 0:
		return time.Time{}, false
	case r.Expiry > epochMillisThreshold:
		return time.UnixMilli(r.Expiry).UTC(), true
	default:
		return time.Unix(r.Expiry, 0).UTC(), true
	}
}

// Event is one element of RawMarket.Events.
type Event struct {
	ID       string               `json:"id"`
	Title    string               `json:"title"`
	Image    string               `json:"image,omitempty"`
	Icon     string               `json:"icon,omitempty"`
	Outcomes LenientList[Outcome] `json:"outcomes,omitempty"`
}

// Outcome is one option of an event.
type Outcome struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
	Name  string `json:"name,omitempty"`
	Icon  string `json:"icon,omitempty"`
	Image string `json:"image,omitempty"`
}

// Label returns the title, or the name when no title is set.
func (o Outcome) Label() string {
	if t := strings.TrimSpace(o.Title); t != "" {
		return t
	}
	return strings.TrimSpace(o.Name)
}

// OptionMarket is a per-option sub-market whose question embeds the option's
// entity name ("Will Barcelona win?").
type OptionMarket struct {
	ID       string `json:"id"`
	Question string `json:"question"`
	Icon     string `json:"icon,omitempty"`
}

// LenientList is a JSON array whose malformed elements are dropped on
// decode. A value that is not an array decodes as an empty list.
type LenientList[T any] []T

// UnmarshalJSON implements json.Unmarshaler. It never fails.
func (l *LenientList[T]) UnmarshalJSON(data []byte) error {
	*l = nil
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil || len(items) == 0 {
		return nil
	}
	out := make(LenientList[T], 0, len(items))
	for _, item := range items {
		var v T
		if err := json.Unmarshal(item, &v); err != nil {
			continue
		}
		out = append(out, v)
	}
	*l = out
	return nil
}

// Outcomes holds option labels decoded from either a JSON array of strings or
// a string that itself contains a JSON array. Anything else decodes without
// error and leaves Parsed false.
type Outcomes struct {
	Labels []string
	Parsed bool
}

// UnmarshalJSON implements json.Unmarshaler. It never fails.
func (o *Outcomes) UnmarshalJSON(data []byte) error {
	*o = Outcomes{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		data = []byte(strings.TrimSpace(s))
	}

	var labels []string
	if err := json.Unmarshal(data, &labels); err != nil {
		return nil
	}
	o.Labels = labels
	o.Parsed = true
	return nil
}

// MarshalJSON writes the labels as a plain array, or null when unparsed.
func (o Outcomes) MarshalJSON() ([]byte, error) {
	if !o.Parsed {
		return []byte("null"), nil
	}
	return json.Marshal(o.Labels)
}

// NewOutcomes builds a parsed Outcomes value from labels.
func NewOutcomes(labels ...string) Outcomes {
	return Outcomes{Labels: labels, Parsed: true}
}

// Hint is an optional boolean flag. Upstream sends these as JSON booleans,
// as "true"/"false" strings, or not at all.
type Hint struct {
	Set   bool
	Value bool
}

// UnmarshalJSON implements json.Unmarshaler. Unrecognised values leave the
// hint unset instead of failing the whole record.
func (h *Hint) UnmarshalJSON(data []byte) error {
	*h = Hint{}
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*h = Hint{Set: true, Value: b}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes":
		*h = Hint{Set: true, Value: true}
	case "false", "0", "no":
		*h = Hint{Set: true, Value: false}
	}
	return nil
}

// MarshalJSON writes the flag, or null when it was never set.
func (h Hint) MarshalJSON() ([]byte, error) {
	if !h.Set {
		return []byte("null"), nil
	}
	return json.Marshal(h.Value)
}

// Flag returns a set Hint.
func Flag(v bool) Hint {
	return Hint{Set: true, Value: v}
}
