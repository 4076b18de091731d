package resolver

import "strings"

// Kind is the derived market kind.
type Kind string

const (
	KindBinary   Kind = "binary"
	KindMultiple Kind = "multiple"
)

var syntheticOutcomes = []string{"Yes", "No"}

// classification is the classifier output plus the binary option labels it
// settled on.
type classification struct {
	kind    Kind
	options []string
}

// classify derives the market kind. The first rule that gives a confident
// answer wins:
//  1. explicit, non-contradictory is_binary / is_multiple_option flags;
//  2. outcomes that are exactly {yes, no};
//  3. an is_event flag, more than one option market, more than two outcomes
//     on any event (or two named outcomes that are not yes/no), or more than
//     two parsed outcomes;
//  4. binary with synthetic Yes/No options.
func classify(raw RawMarket) classification {
	if kind, ok := kindFromHints(raw.IsBinary, raw.IsMultipleOption); ok {
		if kind == KindBinary {
			return classification{kind: KindBinary, options: binaryOptions(raw.Outcomes)}
		}
		return classification{kind: KindMultiple}
	}

	if raw.Outcomes.Parsed && isYesNo(raw.Outcomes.Labels) {
		return classification{kind: KindBinary, options: trimmed(raw.Outcomes.Labels)}
	}

	if raw.IsEvent.Set && raw.IsEvent.Value {
		return classification{kind: KindMultiple}
	}
	if len(raw.OptionMarkets) > 1 {
		return classification{kind: KindMultiple}
	}
	for _, ev := range raw.Events {
		if len(ev.Outcomes) > 2 || namedPair(ev.Outcomes) {
			return classification{kind: KindMultiple}
		}
	}
	if raw.Outcomes.Parsed && len(nonEmpty(raw.Outcomes.Labels)) > 2 {
		return classification{kind: KindMultiple}
	}

	return classification{kind: KindBinary, options: binaryOptions(raw.Outcomes)}
}

// kindFromHints trusts the explicit flags unless they are absent or
// contradict each other.
func kindFromHints(isBinary, isMultiple Hint) (Kind, bool) {
	switch {
	case isBinary.Set && isMultiple.Set:
		if isBinary.Value == isMultiple.Value {
			return "", false
		}
		if isBinary.Value {
			return KindBinary, true
		}
		return KindMultiple, true
	case isBinary.Set:
		if isBinary.Value {
			return KindBinary, true
		}
		return KindMultiple, true
	case isMultiple.Set:
		if isMultiple.Value {
			return KindMultiple, true
		}
		return KindBinary, true
	}
	return "", false
}

func isYesNo(labels []string) bool {
	if len(labels) != 2 {
		return false
	}
	a := strings.ToLower(strings.TrimSpace(labels[0]))
	b := strings.ToLower(strings.TrimSpace(labels[1]))
	return (a == "yes" && b == "no") || (a == "no" && b == "yes")
}

// namedPair reports whether outcomes are exactly two labelled entities such
// as two teams, rather than a yes/no pair.
func namedPair(outcomes []Outcome) bool {
	if len(outcomes) != 2 {
		return false
	}
	a, b := outcomes[0].Label(), outcomes[1].Label()
	return a != "" && b != "" && !isYesNo([]string{a, b})
}

// binaryOptions keeps two usable parsed labels and otherwise falls back to
// the synthetic Yes/No pair.
func binaryOptions(o Outcomes) []string {
	if o.Parsed {
		if labels := nonEmpty(o.Labels); len(labels) == 2 {
			return labels
		}
	}
	return append([]string(nil), syntheticOutcomes...)
}

func trimmed(labels []string) []string {
	out := make([]string, len(labels))
	for i, l := range labels {
		out[i] = strings.TrimSpace(l)
	}
	return out
}

func nonEmpty(labels []string) []string {
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}
