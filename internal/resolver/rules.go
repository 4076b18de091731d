package resolver

import (
	"regexp"
	"strings"
	"unicode"
)

// DefaultGenericTerms are labels that denote a catch-all bucket rather than a
// specific entity. "barcelona" is a data quirk: upstream feeds have used it
// as a mislabeled generic bucket, so it is kept in the table rather than in
// code and can be removed through configuration.
var DefaultGenericTerms = []string{
	"another team",
	"other team",
	"another club",
	"other club",
	"field",
	"other",
	"barcelona",
}

// defaultEntityPatterns pull the entity out of a question-phrased option
// label once the leading "Will " and trailing "?" are gone. The first
// capture group is the entity.
var defaultEntityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(.+?)\s+(?:win|wins|be|become|finish|make|reach|qualify|advance|get|have|lead|top)\b.*$`),
}

// Rules is the table of string heuristics used for option matching. It is
// kept apart from the resolution algorithm so the quirky cases stay auditable.
type Rules struct {
	// GenericTerms are matched case-insensitively, on word boundaries,
	// anywhere inside an option label.
	GenericTerms []string
	// EntityPatterns are tried in order against a stripped option question.
	EntityPatterns []*regexp.Regexp
}

// DefaultRules returns the built-in rule table.
func DefaultRules() Rules {
	return Rules{
		GenericTerms:   append([]string(nil), DefaultGenericTerms...),
		EntityPatterns: defaultEntityPatterns,
	}
}

// WithGenericTerms returns a copy of r whose generic terms are replaced.
func (r Rules) WithGenericTerms(terms []string) Rules {
	cleaned := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = normalize(t); t != "" {
			cleaned = append(cleaned, t)
		}
	}
	r.GenericTerms = cleaned
	return r
}

// IsGeneric reports whether label matches any generic term.
func (r Rules) IsGeneric(label string) bool {
	n := normalize(label)
	if n == "" {
		return false
	}
	for _, term := range r.GenericTerms {
		if containsPhrase(n, normalize(term)) {
			return true
		}
	}
	return false
}

// EntityFromQuestion extracts an option label from a yes/no question such as
// "Will Real Madrid win La Liga?". When nothing usable remains the whole
// trimmed question is returned so the label stays unique.
func (r Rules) EntityFromQuestion(question string) string {
	q := strings.TrimSpace(question)
	if q == "" {
		return ""
	}
	stripped := q
	if len(stripped) >= 5 && strings.EqualFold(stripped[:5], "will ") {
		stripped = stripped[5:]
	}
	stripped = strings.TrimSpace(strings.TrimRight(stripped, "? "))
	if stripped == "" {
		return q
	}
	for _, p := range r.EntityPatterns {
		if m := p.FindStringSubmatch(stripped); len(m) > 1 {
			if e := strings.TrimSpace(m[1]); e != "" {
				return e
			}
		}
	}
	return stripped
}

// sameEntity reports whether two labels name the same thing: one normalized
// label contains the other on word boundaries.
func sameEntity(a, b string) bool {
	na, nb := normalize(a), normalize(b)
	if na == "" || nb == "" {
		return false
	}
	return containsPhrase(na, nb) || containsPhrase(nb, na)
}

// normalize lowercases s and collapses runs of whitespace to one space.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// containsPhrase reports whether needle occurs in haystack with no letter or
// digit directly before or after it. Both inputs must be normalized.
func containsPhrase(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	for start := 0; start <= len(haystack)-len(needle); {
		i := strings.Index(haystack[start:], needle)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(needle)
		if boundaryBefore(haystack, i) && boundaryAfter(haystack, end) {
			return true
		}
		start = i + 1
	}
	return false
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r := lastRune(s[:i])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r := []rune(s[i:])[0]
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func lastRune(s string) rune {
	rs := []rune(s)
	return rs[len(rs)-1]
}
