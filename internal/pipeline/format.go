package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/listingbot/internal/domain"
)

const (
	initialHeader = "INITIAL APPROVAL NEEDED"
	finalHeader   = "FINAL APPROVAL NEEDED"
	reviewFooter  = "React with ✅ to approve or ❌ to reject"

	maxSummaryFailures = 10
)

// InitialMessage renders the first review request for m: market details,
// the banner, and for multi-option markets one icon row per option.
func InitialMessage(m domain.Market) domain.ChatMessage {
	blocks := []domain.ChatBlock{
		{Kind: domain.BlockHeader, Text: initialHeader},
		{Kind: domain.BlockText, Text: details(m)},
	}
	if m.BannerImage != "" {
		blocks = append(blocks, domain.ChatBlock{Kind: domain.BlockImage, ImageURL: m.BannerImage, AltText: "Market banner"})
	}
	if m.Kind == domain.KindMultiple {
		if list := optionList(m.Options); list != "" {
			blocks = append(blocks, domain.ChatBlock{Kind: domain.BlockText, Text: list})
		}
		for _, oi := range m.OptionImages {
			blocks = append(blocks, domain.ChatBlock{Kind: domain.BlockOption, Text: oi.Label, ImageURL: oi.URL, AltText: oi.Label})
		}
	}
	blocks = append(blocks,
		domain.ChatBlock{Kind: domain.BlockDivider},
		domain.ChatBlock{Kind: domain.BlockText, Text: reviewFooter},
	)
	return domain.ChatMessage{
		Text:   "New market for approval: " + m.Question,
		Blocks: blocks,
	}
}

// FinalMessage renders the second review request, showing the generated
// banner in place of the source image.
func FinalMessage(m domain.Market) domain.ChatMessage {
	blocks := []domain.ChatBlock{
		{Kind: domain.BlockHeader, Text: finalHeader},
		{Kind: domain.BlockText, Text: details(m)},
	}
	if m.BannerURL != "" {
		blocks = append(blocks, domain.ChatBlock{Kind: domain.BlockImage, ImageURL: m.BannerURL, AltText: "Generated banner"})
	}
	if list := optionList(m.Options); list != "" {
		blocks = append(blocks, domain.ChatBlock{Kind: domain.BlockText, Text: list})
	}
	blocks = append(blocks,
		domain.ChatBlock{Kind: domain.BlockDivider},
		domain.ChatBlock{Kind: domain.BlockText, Text: reviewFooter},
	)
	return domain.ChatMessage{
		Text:   "Market ready for deployment: " + m.Question,
		Blocks: blocks,
	}
}

func details(m domain.Market) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Question:* %s\n", m.Question)
	if m.EventTitle != "" && m.EventTitle != m.Question {
		fmt.Fprintf(&b, "*Event:* %s\n", m.EventTitle)
	}
	fmt.Fprintf(&b, "*Category:* %s\n", orDefault(m.Category, "uncategorized"))
	fmt.Fprintf(&b, "*Expiry:* %s\n", formatExpiry(m.ExpiresAt))
	fmt.Fprintf(&b, "*Type:* %s", kindLabel(m.Kind))
	return b.String()
}

func optionList(options []string) string {
	if len(options) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("*Options:*")
	for i, o := range options {
		fmt.Fprintf(&b, "\n%d. %s", i+1, o)
	}
	return b.String()
}

func formatExpiry(t *time.Time) string {
	if t == nil {
		return "unknown"
	}
	return t.UTC().Format("2006-01-02 15:04 UTC")
}

func kindLabel(k domain.MarketKind) string {
	if k == domain.KindMultiple {
		return "Multiple choice"
	}
	return "Binary"
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// SummaryText renders the end-of-run report.
func SummaryText(run domain.PipelineRun) string {
	var b strings.Builder
	fmt.Fprintf(&b,
		"Pipeline run %s finished: processed %d, approved %d, rejected %d, timed out %d, banners %d, deployed %d, failed %d",
		run.ID, run.Processed, run.Approved, run.Rejected, run.TimedOut, run.Banners, run.Deployed, run.Failed,
	)
	if run.Error != "" {
		fmt.Fprintf(&b, "\nError: %s", run.Error)
	}
	if len(run.Failures) > 0 {
		b.WriteString("\nFailures:")
		for i, f := range run.Failures {
			if i == maxSummaryFailures {
				fmt.Fprintf(&b, "\n… and %d more", len(run.Failures)-maxSummaryFailures)
				break
			}
			fmt.Fprintf(&b, "\n- %s", f)
		}
	}
	return b.String()
}
