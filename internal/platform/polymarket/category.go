package polymarket

import (
	"regexp"
	"strings"
)

type categoryRule struct {
	name     string
	keywords *regexp.Regexp
}

func keywordRule(name string, words ...string) categoryRule {
	return categoryRule{
		name:     name,
		keywords: regexp.MustCompile(`\b(` + strings.Join(words, "|") + `)\b`),
	}
}

// categoryRules are tried in order; the first match names the category.
var categoryRules = []categoryRule{
	keywordRule("politics", "biden", "trump", "president", "election", "vote", "congress", "political",
		"government", "senate", "house", "supreme court", "justice"),
	keywordRule("crypto", "bitcoin", "eth", "ethereum", "crypto", "blockchain", "token",
		"defi", "nft", "cryptocurrency", "btc"),
	keywordRule("sports", "team", "game", "match", "player", "sport", "win", "championship",
		"tournament", "league", "nba", "nfl", "mlb", "soccer", "football"),
	keywordRule("business", "stock", "company", "price", "market", "business", "earnings",
		"profit", "ceo", "investor", "economy", "financial", "trade"),
	keywordRule("tech", "ai", "tech", "technology", "software", "app", "computer", "device",
		"release", "launch", "update", "apple", "google", "microsoft"),
	keywordRule("culture", "movie", "film", "show", "tv", "actor", "actress", "director",
		"music", "song", "album", "artist", "celebrity", "award"),
}

const defaultCategory = "news"

// Categorize picks a category for a listing. An explicit category wins, then
// the first tag label, then keyword matching on the question.
func Categorize(explicit string, tags []APITag, question string) string {
	if c := strings.ToLower(strings.TrimSpace(explicit)); c != "" {
		return c
	}
	for _, t := range tags {
		if l := strings.ToLower(strings.TrimSpace(t.Label)); l != "" {
			return l
		}
	}
	return categorizeQuestion(question)
}

func categorizeQuestion(question string) string {
	q := strings.ToLower(question)
	for _, r := range categoryRules {
		if r.keywords.MatchString(q) {
			return r.name
		}
	}
	return defaultCategory
}
