package pipeline

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/listingbot/internal/domain"
)

// categoryAliases maps source categories onto the prompt vocabulary.
var categoryAliases = map[string]string{
	"business": "finance",
	"tech":     "technology",
	"culture":  "entertainment",
}

var categoryStyles = map[string]string{
	"politics":      "Include subtle political imagery like government buildings, flags, or voting symbols. Use a formal, news-like style.",
	"sports":        "Use dynamic sports imagery with action elements. Include relevant equipment or stadium visuals.",
	"entertainment": "Create a glamorous, eye-catching design with entertainment industry symbols like film reels, cameras, or spotlights.",
	"finance":       "Use clean, professional financial imagery with graphs, charts, or currency symbols. Employ a blue and green color scheme.",
	"technology":    "Create a futuristic, tech-oriented image with circuit patterns, digital elements, or modern device silhouettes.",
	"science":       "Include scientific symbols, lab equipment, or data visualizations. Use a clean, precise visual style.",
	"crypto":        "Incorporate blockchain imagery, cryptocurrency symbols, or abstract digital patterns. Use a modern tech aesthetic.",
}

const defaultStyle = "Use a clean, professional design with neutral colors and abstract elements representing uncertainty and prediction."

var kindStyles = map[domain.MarketKind]string{
	domain.KindBinary:   "The image should clearly represent a yes/no or true/false dichotomy, perhaps with contrasting elements.",
	domain.KindMultiple: "The design should subtly hint at multiple possible outcomes or choices.",
}

const formatInstructions = "The image should be high quality, suitable for a professional trading platform. " +
	"Use a 16:9 aspect ratio with clean typography and minimal text. " +
	"Avoid including any text that directly quotes the market question. " +
	"The style should be modern, digital, and somewhat abstract - avoid photorealistic human faces or controversial imagery."

// BannerPrompt builds the image prompt for m from its question, category
// and kind.
func BannerPrompt(m domain.Market) string {
	category := strings.ToLower(strings.TrimSpace(m.Category))
	if alias, ok := categoryAliases[category]; ok {
		category = alias
	}
	style, ok := categoryStyles[category]
	if !ok {
		style = defaultStyle
	}

	parts := []string{
		fmt.Sprintf("Create a clean, visually striking banner image representing a prediction market about: '%s'.", m.Question),
		style,
	}
	if ks := kindStyles[m.Kind]; ks != "" {
		parts = append(parts, ks)
	}
	parts = append(parts, formatInstructions)
	return strings.Join(parts, " ")
}
