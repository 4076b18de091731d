package discord

import (
	"strings"

	"github.com/alanyoungcy/listingbot/internal/domain"
)

// maxEmbeds is Discord's per-message embed limit.
const maxEmbeds = 10

type embedImage struct {
	URL string `json:"url"`
}

type embed struct {
	Title       string      `json:"title,omitempty"`
	Description string      `json:"description,omitempty"`
	Image       *embedImage `json:"image,omitempty"`
	Thumbnail   *embedImage `json:"thumbnail,omitempty"`
}

// renderEmbeds folds blocks into message content and embeds. Header and text
// blocks fill the first embed, the first image becomes its picture, and each
// option row gets its own embed with the icon as thumbnail. Options beyond
// the embed limit are listed in the content instead.
func renderEmbeds(msg domain.ChatMessage) (string, []embed) {
	content := msg.Text
	if len(msg.Blocks) == 0 {
		return content, nil
	}

	var (
		main     embed
		desc     []string
		options  []embed
		overflow []string
	)
	for _, b := range msg.Blocks {
		switch b.Kind {
		case domain.BlockHeader:
			if main.Title == "" {
				main.Title = b.Text
			} else {
				desc = append(desc, "**"+b.Text+"**")
			}
		case domain.BlockText:
			desc = append(desc, b.Text)
		case domain.BlockImage:
			if b.ImageURL != "" && main.Image == nil {
				main.Image = &embedImage{URL: b.ImageURL}
			}
		case domain.BlockOption:
			if len(options) >= maxEmbeds-1 {
				overflow = append(overflow, b.Text)
				continue
			}
			e := embed{Description: b.Text}
			if b.ImageURL != "" {
				e.Thumbnail = &embedImage{URL: b.ImageURL}
			}
			options = append(options, e)
		}
	}
	main.Description = strings.Join(desc, "\n")

	if len(overflow) > 0 {
		content = strings.TrimSpace(content + "\n" + strings.Join(overflow, "\n"))
	}
	if main == (embed{}) {
		return content, options
	}
	return content, append([]embed{main}, options...)
}
