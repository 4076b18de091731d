package slack

import "github.com/alanyoungcy/listingbot/internal/domain"

// maxHeaderLen is Slack's limit for plain_text in header blocks.
const maxHeaderLen = 150

type textObject struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

type imageElement struct {
	Type     string `json:"type"`
	ImageURL string `json:"image_url"`
	AltText  string `json:"alt_text"`
}

type block struct {
	Type      string        `json:"type"`
	Text      *textObject   `json:"text,omitempty"`
	ImageURL  string        `json:"image_url,omitempty"`
	AltText   string        `json:"alt_text,omitempty"`
	Accessory *imageElement `json:"accessory,omitempty"`
}

// renderBlocks maps platform-neutral blocks onto Block Kit. Option rows are
// sections with the option icon as an image accessory.
func renderBlocks(in []domain.ChatBlock) []block {
	out := make([]block, 0, len(in))
	for _, b := range in {
		switch b.Kind {
		case domain.BlockHeader:
			out = append(out, block{
				Type: "header",
				Text: &textObject{Type: "plain_text", Text: truncate(b.Text, maxHeaderLen), Emoji: true},
			})
		case domain.BlockText:
			out = append(out, block{Type: "section", Text: &textObject{Type: "mrkdwn", Text: b.Text}})
		case domain.BlockImage:
			if b.ImageURL == "" {
				continue
			}
			out = append(out, block{Type: "image", ImageURL: b.ImageURL, AltText: altText(b)})
		case domain.BlockDivider:
			out = append(out, block{Type: "divider"})
		case domain.BlockOption:
			sec := block{Type: "section", Text: &textObject{Type: "mrkdwn", Text: b.Text}}
			if b.ImageURL != "" {
				sec.Accessory = &imageElement{Type: "image", ImageURL: b.ImageURL, AltText: altText(b)}
			}
			out = append(out, sec)
		}
	}
	return out
}

func altText(b domain.ChatBlock) string {
	switch {
	case b.AltText != "":
		return b.AltText
	case b.Text != "":
		return b.Text
	default:
		return "image"
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
