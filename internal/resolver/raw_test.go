package resolver

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"
)

func TestOutcomes_Decode(t *testing.T) {
	tests := []struct {
		in     string
		parsed bool
		labels []string
	}{
		{`["Yes","No"]`, true, []string{"Yes", "No"}},
		{`"[\"A\",\"B\",\"C\"]"`, true, []string{"A", "B", "C"}},
		{`"[Yes, No]"`, false, nil},
		{`null`, false, nil},
		{`42`, false, nil},
		{`{"a":"b"}`, false, nil},
		{`""`, false, nil},
	}
	for _, tt := range tests {
		var o Outcomes
		if err := json.Unmarshal([]byte(tt.in), &o); err != nil {
			t.Errorf("%s: unexpected error %v", tt.in, err)
			continue
		}
		if o.Parsed != tt.parsed || !reflect.DeepEqual(o.Labels, tt.labels) {
			t.Errorf("%s: got %+v", tt.in, o)
		}
	}
}

func TestOutcomes_Encode(t *testing.T) {
	b, _ := json.Marshal(NewOutcomes("Yes", "No"))
	if string(b) != `["Yes","No"]` {
		t.Errorf("parsed = %s", b)
	}
	b, _ = json.Marshal(Outcomes{})
	if string(b) != `null` {
		t.Errorf("unparsed = %s", b)
	}
}

func TestRawMarket_MalformedListsDecodeEmpty(t *testing.T) {
	payloads := []string{
		`{"id":"1","question":"Q?","events":"oops","option_markets":{"id":"x"}}`,
		`{"id":"1","question":"Q?","events":42,"option_markets":"nope"}`,
	}
	for _, p := range payloads {
		var raw RawMarket
		if err := json.Unmarshal([]byte(p), &raw); err != nil {
			t.Errorf("%s: unexpected error %v", p, err)
			continue
		}
		if raw.ID != "1" || len(raw.Events) != 0 || len(raw.OptionMarkets) != 0 {
			t.Errorf("%s: got %+v", p, raw)
		}
	}
}

func TestRawMarket_MalformedElementsDropped(t *testing.T) {
	payload := `{"id":"1","question":"Who wins?",
	  "events":[{"id":"e","title":"Cup","outcomes":[{"title":"A"},"junk",{"title":"B","image":"https://x/b.png"}]}, 7],
	  "option_markets":[{"id":"m1","question":"Will A win?"},{"id":["bad"]}]}`
	var raw RawMarket
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(raw.Events) != 1 || raw.Events[0].Title != "Cup" {
		t.Fatalf("events = %+v", raw.Events)
	}
	outs := raw.Events[0].Outcomes
	if len(outs) != 2 || outs[1].Label() != "B" || outs[1].Image != "https://x/b.png" {
		t.Errorf("outcomes = %+v", outs)
	}
	if len(raw.OptionMarkets) != 1 || raw.OptionMarkets[0].ID != "m1" {
		t.Errorf("option markets = %+v", raw.OptionMarkets)
	}
}

func TestHint_Decode(t *testing.T) {
	tests := map[string]Hint{
		`true`:    {Set: true, Value: true},
		`false`:   {Set: true, Value: false},
		`"TRUE"`:  {Set: true, Value: true},
		`"0"`:     {Set: true, Value: false},
		`"maybe"`: {},
		`null`:    {},
		`1`:       {},
	}
	for in, want := range tests {
		var h Hint
		if err := json.Unmarshal([]byte(in), &h); err != nil {
			t.Errorf("%s: unexpected error %v", in, err)
			continue
		}
		if h != want {
			t.Errorf("%s: got %+v, want %+v", in, h, want)
		}
	}
}

func TestRawMarket_ExpiresAt(t *testing.T) {
	want := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		raw  RawMarket
		ok   bool
		want time.Time
	}{
		{"rfc3339", RawMarket{EndDate: "2025-06-01T12:00:00Z"}, true, want},
		{"offset", RawMarket{EndDate: "2025-06-01T14:00:00+02:00"}, true, want},
		{"epoch seconds", RawMarket{Expiry: want.Unix()}, true, want},
		{"epoch millis", RawMarket{Expiry: want.UnixMilli()}, true, want},
		{"bare date", RawMarket{EndDate: "2025-06-01"}, true, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)},
		{"garbage date falls back", RawMarket{EndDate: "soon", Expiry: want.Unix()}, true, want},
		{"nothing", RawMarket{}, false, time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.raw.ExpiresAt()
			if ok != tt.ok || !got.Equal(tt.want) {
				t.Errorf("ExpiresAt = %v, %v; want %v, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}
