package polymarket

import (
	"encoding/json"
	"strings"

	"github.com/alanyoungcy/listingbot/internal/resolver"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma API
// responses work whether a flag is sent as bool or string. null and
// unrecognised values decode as false.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		*f = false
		return nil
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// APITag is a topic label attached to markets and events.
type APITag struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Slug  string `json:"slug"`
}

// APIEvent is the event summary embedded in a Gamma market. An event groups
// one or more related markets, e.g. one per candidate.
type APIEvent struct {
	ID       string                       `json:"id"`
	Title    string                       `json:"title"`
	Slug     string                       `json:"slug"`
	Image    string                       `json:"image"`
	Icon     string                       `json:"icon"`
	Category string                       `json:"category"`
	EndDate  string                       `json:"endDate"`
	Active   flexBool                     `json:"active"`
	Closed   flexBool                     `json:"closed"`
	Tags     resolver.LenientList[APITag] `json:"tags"`
}

// Live reports whether the event is still open for listing.
func (e APIEvent) Live() bool {
	return bool(e.Active) && !bool(e.Closed)
}

// APIMarket is a market as returned by the Gamma /markets endpoint. Outcomes
// arrive as a JSON-encoded string and are decoded by resolver.Outcomes.
// Malformed events or tags decode as empty lists.
type APIMarket struct {
	ID             string                         `json:"id"`
	Question       string                         `json:"question"`
	ConditionID    string                         `json:"conditionId"`
	Slug           string                         `json:"slug"`
	Category       string                         `json:"category"`
	EndDate        string                         `json:"endDate"`
	Image          string                         `json:"image"`
	Icon           string                         `json:"icon"`
	Outcomes       resolver.Outcomes              `json:"outcomes"`
	GroupItemTitle string                         `json:"groupItemTitle"`
	Active         flexBool                       `json:"active"`
	Closed         flexBool                       `json:"closed"`
	Archived       flexBool                       `json:"archived"`
	Events         resolver.LenientList[APIEvent] `json:"events"`
	Tags           resolver.LenientList[APITag]   `json:"tags"`
}

// liveEvents returns the events that are active and not closed, in order.
func (m APIMarket) liveEvents() []APIEvent {
	out := make([]APIEvent, 0, len(m.Events))
	for _, ev := range m.Events {
		if ev.Live() {
			out = append(out, ev)
		}
	}
	return out
}
