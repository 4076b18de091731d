package resolver

import (
	"encoding/json"
	"math/rand"
	"reflect"
	"testing"
)

const placeholder = "https://cdn.example.com/placeholder.png"

func decode(t *testing.T, payload string) RawMarket {
	t.Helper()
	var raw RawMarket
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		t.Fatalf("decode raw market: %v", err)
	}
	return raw
}

func TestResolve_BinaryMarket(t *testing.T) {
	raw := decode(t, `{"outcomes":["Yes","No"],"image":"https://x/a.png"}`)
	got := Resolve(raw, placeholder)

	if !got.IsBinary || got.IsMultipleOption {
		t.Fatalf("expected binary market, got %+v", got)
	}
	if got.BannerImage != "https://x/a.png" {
		t.Errorf("BannerImage = %q, want https://x/a.png", got.BannerImage)
	}
	if len(got.OptionImages) != 0 {
		t.Errorf("expected no option images, got %v", got.OptionImages)
	}
	if !reflect.DeepEqual(got.Options, []string{"Yes", "No"}) {
		t.Errorf("Options = %v", got.Options)
	}
}

func TestResolve_GenericOptionNeverGetsBanner(t *testing.T) {
	raw := decode(t, `{
		"events":[{
			"image":"https://x/event.png",
			"outcomes":[
				{"title":"Real Madrid","icon":"https://x/rm.png"},
				{"title":"Barcelona","icon":"https://x/event.png"}
			]
		}]
	}`)
	got := Resolve(raw, placeholder)

	if !got.IsMultipleOption {
		t.Fatalf("expected multi-option market, got %+v", got)
	}
	if got.BannerImage != "https://x/event.png" {
		t.Fatalf("BannerImage = %q", got.BannerImage)
	}
	barca, ok := got.OptionImages.Get("Barcelona")
	if !ok {
		t.Fatalf("Barcelona missing from %v", got.OptionImages)
	}
	if barca == got.BannerImage {
		t.Errorf("Barcelona got the event banner")
	}
	if barca != "https://x/rm.png" {
		t.Errorf("Barcelona = %q, want neighbour icon https://x/rm.png", barca)
	}
	if rm, _ := got.OptionImages.Get("Real Madrid"); rm != "https://x/rm.png" {
		t.Errorf("Real Madrid = %q", rm)
	}
}

func TestResolve_SameEntityFromBothSources(t *testing.T) {
	raw := decode(t, `{
		"is_multiple_option": true,
		"option_markets":[{"id":"101","question":"Will Real Madrid win?","icon":"https://x/rm.png"}],
		"events":[{"outcomes":[{"title":"Real Madrid","icon":"https://x/rm.png"}]}]
	}`)
	got := Resolve(raw, placeholder)

	if len(got.OptionImages) != 1 {
		t.Fatalf("expected one option, got %v", got.OptionImages)
	}
	if got.OptionImages[0].Label != "Real Madrid" {
		t.Errorf("label = %q, want bare name", got.OptionImages[0].Label)
	}
	if got.OptionImages[0].URL != "https://x/rm.png" {
		t.Errorf("url = %q", got.OptionImages[0].URL)
	}
}

func TestResolve_MalformedOutcomesFallsBackToSyntheticBinary(t *testing.T) {
	raw := decode(t, `{"question":"Will it rain?","outcomes":"[Yes, No]"}`)
	if raw.Outcomes.Parsed {
		t.Fatalf("outcomes should not parse")
	}
	got := Resolve(raw, placeholder)
	if !got.IsBinary {
		t.Fatalf("expected binary fallback")
	}
	if !reflect.DeepEqual(got.Options, []string{"Yes", "No"}) {
		t.Errorf("Options = %v, want synthetic Yes/No", got.Options)
	}
}

func TestResolve_MultiFlagWithoutEvents(t *testing.T) {
	raw := decode(t, `{"is_multiple_option":true,"image":"https://x/market.png"}`)
	got := Resolve(raw, placeholder)

	if !got.IsMultipleOption {
		t.Fatalf("expected multi-option")
	}
	if len(got.OptionImages) != 0 {
		t.Errorf("expected empty option images, got %v", got.OptionImages)
	}
	if got.BannerImage != "https://x/market.png" {
		t.Errorf("BannerImage = %q, want market image fallback", got.BannerImage)
	}
}

func TestResolve_DeduplicatesLeagueOptions(t *testing.T) {
	raw := decode(t, `{
		"question":"Which team will win La Liga 2024-25?",
		"is_multiple_option": true,
		"is_binary": false,
		"events":[{
			"id":"laliga-2024-25",
			"title":"La Liga Winner 2024-25",
			"image":"https://i.example.com/laliga.jpg",
			"outcomes":[
				{"id":"real-madrid","title":"Real Madrid","icon":"https://i.example.com/rm.png"},
				{"id":"atletico","title":"Atletico Madrid","icon":"https://i.example.com/atm.png"},
				{"id":"sevilla","name":"Sevilla","icon":"https://i.example.com/sev.png"}
			]
		}],
		"option_markets":[
			{"id":"101","question":"Will Real Madrid win La Liga?","icon":"https://i.example.com/rm.png"},
			{"id":"102","question":"Will Atletico Madrid win La Liga?","icon":"https://i.example.com/atm.png"},
			{"id":"103","question":"Will Sevilla win La Liga?","icon":"https://i.example.com/sev.png"}
		]
	}`)
	got := Resolve(raw, placeholder)

	want := []string{"Real Madrid", "Atletico Madrid", "Sevilla"}
	if !reflect.DeepEqual(got.OptionImages.Labels(), want) {
		t.Fatalf("labels = %v, want %v", got.OptionImages.Labels(), want)
	}
	if !reflect.DeepEqual(got.Options, want) {
		t.Errorf("Options = %v", got.Options)
	}
}

func TestResolve_OptionMarketOrderWhenNoOutcomes(t *testing.T) {
	raw := RawMarket{
		IsMultipleOption: Flag(true),
		Events:           []Event{{Image: "https://x/event.png"}},
		OptionMarkets: []OptionMarket{
			{ID: "1", Question: "Will Chelsea win the league?", Icon: "https://x/che.png"},
			{ID: "2", Question: "Will Arsenal win the league?", Icon: "https://x/ars.png"},
			{ID: "3", Question: "Will another team win the league?"},
		},
	}
	got := Resolve(raw, placeholder)

	want := OptionImages{
		{Label: "Chelsea", URL: "https://x/che.png"},
		{Label: "Arsenal", URL: "https://x/ars.png"},
		{Label: "another team", URL: "https://x/che.png"},
	}
	if !reflect.DeepEqual(got.OptionImages, want) {
		t.Fatalf("OptionImages = %+v, want %+v", got.OptionImages, want)
	}
}

func TestResolve_GenericWithoutNeighboursGetsPlaceholder(t *testing.T) {
	raw := RawMarket{
		IsMultipleOption: Flag(true),
		Events: []Event{{
			Image: "https://x/event.png",
			Outcomes: []Outcome{
				{Title: "The Field", Icon: "https://x/event.png"},
				{Title: "Other"},
			},
		}},
	}
	got := Resolve(raw, placeholder)
	for _, oi := range got.OptionImages {
		if oi.URL != placeholder {
			t.Errorf("%s = %q, want placeholder", oi.Label, oi.URL)
		}
	}
	if len(got.OptionImages) != 2 {
		t.Errorf("expected both options kept, got %v", got.OptionImages)
	}
}

func TestResolve_SpecificOptionBannerOnlyAsLastResort(t *testing.T) {
	onlyBanner := RawMarket{
		IsMultipleOption: Flag(true),
		Events: []Event{{
			Image:    "https://x/event.png",
			Outcomes: []Outcome{{Title: "Lakers", Icon: "https://x/event.png"}, {Title: "Celtics"}},
		}},
	}
	got := Resolve(onlyBanner, placeholder)
	if u, _ := got.OptionImages.Get("Lakers"); u != "https://x/event.png" {
		t.Errorf("Lakers = %q, want banner as the only image in the record", u)
	}

	withAlternative := onlyBanner
	withAlternative.Events = []Event{{
		Image:    "https://x/event.png",
		Outcomes: []Outcome{{Title: "Lakers", Icon: "https://x/event.png"}, {Title: "Celtics", Icon: "https://x/bos.png"}},
	}}
	got = Resolve(withAlternative, placeholder)
	if u, _ := got.OptionImages.Get("Lakers"); u != placeholder {
		t.Errorf("Lakers = %q, want placeholder", u)
	}
	if u, _ := got.OptionImages.Get("Celtics"); u != "https://x/bos.png" {
		t.Errorf("Celtics = %q", u)
	}
}

func TestResolve_InvalidURLsTreatedAsMissing(t *testing.T) {
	raw := RawMarket{
		IsMultipleOption: Flag(true),
		Image:            "https://x/market.png",
		Events: []Event{{
			Image: "ftp://x/event.png",
			Icon:  "not a url",
			Outcomes: []Outcome{
				{Title: "Alpha", Icon: "https://"},
				{Title: "Beta", Icon: "https://x/beta.png"},
			},
		}},
	}
	got := Resolve(raw, placeholder)
	if got.BannerImage != "https://x/market.png" {
		t.Errorf("BannerImage = %q, want market fallback", got.BannerImage)
	}
	if got.BannerIcon != "" {
		t.Errorf("BannerIcon = %q, want empty", got.BannerIcon)
	}
	if u, _ := got.OptionImages.Get("Alpha"); u != placeholder {
		t.Errorf("Alpha = %q, want placeholder", u)
	}
}

func TestResolve_PrefersNonBannerIconOnCollision(t *testing.T) {
	raw := RawMarket{
		IsMultipleOption: Flag(true),
		Events: []Event{{
			Image:    "https://x/event.png",
			Outcomes: []Outcome{{Title: "Inter Milan", Icon: "https://x/event.png"}, {Title: "Napoli", Icon: "https://x/nap.png"}},
		}},
		OptionMarkets: []OptionMarket{
			{Question: "Will Inter Milan win Serie A?", Icon: "https://x/inter.png"},
		},
	}
	got := Resolve(raw, placeholder)
	if u, _ := got.OptionImages.Get("Inter Milan"); u != "https://x/inter.png" {
		t.Errorf("Inter Milan = %q, want non-banner icon", u)
	}
	if len(got.OptionImages) != 2 {
		t.Errorf("expected 2 options, got %v", got.OptionImages)
	}
}

func TestResolve_IconEqualityMergesEntities(t *testing.T) {
	raw := RawMarket{
		IsMultipleOption: Flag(true),
		Events: []Event{{
			Image:    "https://x/event.png",
			Outcomes: []Outcome{{Title: "Man City", Icon: "https://x/mci.png"}, {Title: "Spurs", Icon: "https://x/tot.png"}},
		}},
		OptionMarkets: []OptionMarket{
			{Question: "Will Manchester City win?", Icon: "https://x/mci.png"},
		},
	}
	got := Resolve(raw, placeholder)
	if !reflect.DeepEqual(got.OptionImages.Labels(), []string{"Man City", "Spurs"}) {
		t.Errorf("labels = %v", got.OptionImages.Labels())
	}
}

func TestResolve_SharedEventIconDoesNotMergeEntities(t *testing.T) {
	raw := RawMarket{
		IsMultipleOption: Flag(true),
		Events: []Event{{
			Image: "https://x/event.png",
			Icon:  "https://x/event-icon.png",
			Outcomes: []Outcome{
				{Title: "Real Madrid", Icon: "https://x/event-icon.png"},
				{Title: "Atletico", Icon: "https://x/event-icon.png"},
				{Title: "Another Team", Icon: "https://x/event-icon.png"},
			},
		}},
	}
	got := Resolve(raw, placeholder)
	want := []string{"Real Madrid", "Atletico", "Another Team"}
	if !reflect.DeepEqual(got.OptionImages.Labels(), want) {
		t.Errorf("labels = %v, want %v", got.OptionImages.Labels(), want)
	}
	if got.BannerIcon != "https://x/event-icon.png" {
		t.Errorf("BannerIcon = %q", got.BannerIcon)
	}
}

func TestResolve_OutcomeImageFallback(t *testing.T) {
	raw := decode(t, `{"is_multiple_option":true,
	  "events":[{"image":"https://x/event.png","outcomes":[
	    {"title":"Real Madrid","image":"https://x/rm.png"},
	    {"title":"Barcelona","icon":"not a url","image":"https://x/fcb.png"},
	    {"title":"Girona","icon":"https://x/gir.png","image":"https://x/gir-large.png"}]}]}`)
	got := Resolve(raw, placeholder)
	want := OptionImages{
		{Label: "Real Madrid", URL: "https://x/rm.png"},
		{Label: "Barcelona", URL: "https://x/fcb.png"},
		{Label: "Girona", URL: "https://x/gir.png"},
	}
	if !reflect.DeepEqual(got.OptionImages, want) {
		t.Errorf("OptionImages = %+v, want %+v", got.OptionImages, want)
	}
}

func TestResolve_CustomGenericTerms(t *testing.T) {
	raw := RawMarket{
		IsMultipleOption: Flag(true),
		Events: []Event{{
			Image:    "https://x/event.png",
			Outcomes: []Outcome{{Title: "Barcelona", Icon: "https://x/event.png"}, {Title: "Girona", Icon: "https://x/gir.png"}},
		}},
	}
	rules := DefaultRules().WithGenericTerms([]string{"field", "other"})
	got := rules.Resolve(raw, placeholder)
	// Barcelona is specific under these rules and there are other images,
	// so it gets the placeholder instead of borrowing Girona's crest.
	if u, _ := got.OptionImages.Get("Barcelona"); u != placeholder {
		t.Errorf("Barcelona = %q, want placeholder", u)
	}
}

func TestClassify_Hints(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Kind
	}{
		{"explicit binary", `{"is_binary":true,"option_markets":[{"question":"a"},{"question":"b"}]}`, KindBinary},
		{"explicit multi as string", `{"is_multiple_option":"true","outcomes":["Yes","No"]}`, KindMultiple},
		{"is_binary false", `{"is_binary":false}`, KindMultiple},
		{"contradictory flags fall through", `{"is_binary":true,"is_multiple_option":true,"outcomes":"[\"Yes\",\"No\"]"}`, KindBinary},
		{"string encoded yes/no", `{"outcomes":"[\"YES\", \" no \"]"}`, KindBinary},
		{"several option markets", `{"option_markets":[{"question":"Will A win?"},{"question":"Will B win?"}]}`, KindMultiple},
		{"three event outcomes", `{"events":[{"outcomes":[{"title":"A"},{"title":"B"},{"title":"C"}]}]}`, KindMultiple},
		{"three parsed outcomes", `{"outcomes":["A","B","C"]}`, KindMultiple},
		{"garbage hint ignored", `{"is_binary":"maybe","outcomes":["Yes","No"]}`, KindBinary},
		{"nothing known", `{}`, KindBinary},
		{"outcomes is an object", `{"outcomes":{"a":1}}`, KindBinary},
		{"event flag", `{"is_event":true}`, KindMultiple},
		{"event flag as string", `{"is_event":"true","outcomes":["A","B"]}`, KindMultiple},
		{"event flag loses to yes/no outcomes", `{"is_event":true,"outcomes":["Yes","No"]}`, KindBinary},
		{"event flag false", `{"is_event":false}`, KindBinary},
		{"explicit binary beats event flag", `{"is_binary":true,"is_event":true}`, KindBinary},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(decode(t, tt.payload))
			if got.kind != tt.want {
				t.Errorf("kind = %s, want %s", got.kind, tt.want)
			}
		})
	}
}

func TestValidURL(t *testing.T) {
	tests := map[string]bool{
		"https://x/a.png":          true,
		"http://cdn.example.com/a": true,
		"":                         false,
		"https://":                 false,
		"ftp://x/a.png":            false,
		"//x/a.png":                false,
		"HTTPS://x/a.png":          false,
		"https://exa mple.com/a":   false,
		"x/a.png":                  false,
	}
	for in, want := range tests {
		if got := ValidURL(in); got != want {
			t.Errorf("ValidURL(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRules_IsGeneric(t *testing.T) {
	r := DefaultRules()
	tests := map[string]bool{
		"Another Team":    true,
		"any other club":  true,
		"The Field":       true,
		"Other":           true,
		"FC Barcelona":    true,
		"Springfield":     false,
		"Mother Teresa":   false,
		"Real Madrid":     false,
		"   ":             false,
		"Another  TEAM  ": true,
	}
	for label, want := range tests {
		if got := r.IsGeneric(label); got != want {
			t.Errorf("IsGeneric(%q) = %v, want %v", label, got, want)
		}
	}
}

func TestRules_EntityFromQuestion(t *testing.T) {
	r := DefaultRules()
	tests := map[string]string{
		"Will Real Madrid win?":            "Real Madrid",
		"Will Real Madrid win La Liga?":    "Real Madrid",
		"will Kamala Harris be president?": "Kamala Harris",
		"Will the Fed cut rates?":          "the Fed cut rates",
		"Bayern Munich":                    "Bayern Munich",
		"Will ?":                           "Will ?",
		"":                                 "",
	}
	for q, want := range tests {
		if got := r.EntityFromQuestion(q); got != want {
			t.Errorf("EntityFromQuestion(%q) = %q, want %q", q, got, want)
		}
	}
}

// TestResolve_Properties checks the resolver invariants over generated
// multi-source markets.
func TestResolve_Properties(t *testing.T) {
	names := []string{"Arsenal", "Chelsea", "Liverpool", "Everton", "Fulham", "Brentford", "Another Team", "The Field"}
	banner := "https://x/banner.png"
	rng := rand.New(rand.NewSource(7))

	icon := func(name string) string {
		switch rng.Intn(5) {
		case 0:
			return ""
		case 1:
			return banner
		case 2:
			return "bogus"
		default:
			return "https://x/" + name + ".png"
		}
	}

	rules := DefaultRules()
	for i := 0; i < 500; i++ {
		raw := RawMarket{Image: "https://x/market.png"}
		if rng.Intn(2) == 0 {
			raw.IsMultipleOption = Flag(true)
		}
		if rng.Intn(4) > 0 {
			ev := Event{Image: banner}
			for _, n := range names {
				if rng.Intn(2) == 0 {
					ev.Outcomes = append(ev.Outcomes, Outcome{Title: n, Icon: icon(n)})
				}
			}
			raw.Events = []Event{ev}
		}
		for _, n := range names {
			if rng.Intn(3) == 0 {
				raw.OptionMarkets = append(raw.OptionMarkets, OptionMarket{Question: "Will " + n + " win?", Icon: icon(n)})
			}
		}

		got := rules.Resolve(raw, placeholder)
		again := rules.Resolve(raw, placeholder)
		if !reflect.DeepEqual(got, again) {
			t.Fatalf("case %d: resolve is not deterministic", i)
		}
		if got.IsBinary == got.IsMultipleOption {
			t.Fatalf("case %d: kinds not mutually exclusive: %+v", i, got)
		}
		if got.IsBinary && len(got.OptionImages) != 0 {
			t.Fatalf("case %d: binary market has option images", i)
		}

		for a := range got.OptionImages {
			oi := got.OptionImages[a]
			if oi.URL == "" {
				t.Fatalf("case %d: %q has no image", i, oi.Label)
			}
			if rules.IsGeneric(oi.Label) && oi.URL == got.BannerImage {
				t.Fatalf("case %d: generic %q got banner", i, oi.Label)
			}
			if !rules.IsGeneric(oi.Label) && hadOwnIcon(raw, rules, oi.Label, got.BannerImage) && oi.URL == got.BannerImage {
				t.Fatalf("case %d: %q leaked banner despite own icon", i, oi.Label)
			}
			for b := a + 1; b < len(got.OptionImages); b++ {
				if sameEntity(oi.Label, got.OptionImages[b].Label) {
					t.Fatalf("case %d: duplicate entity %q / %q", i, oi.Label, got.OptionImages[b].Label)
				}
			}
		}
	}
}

func hadOwnIcon(raw RawMarket, rules Rules, label, banner string) bool {
	check := func(candidate, icon string) bool {
		return sameEntity(candidate, label) && ValidURL(icon) && icon != banner
	}
	if len(raw.Events) > 0 {
		for _, o := range raw.Events[0].Outcomes {
			if check(o.Label(), o.Icon) {
				return true
			}
		}
	}
	for _, om := range raw.OptionMarkets {
		if check(rules.EntityFromQuestion(om.Question), om.Icon) {
			return true
		}
	}
	return false
}
