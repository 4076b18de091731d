package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/listingbot/internal/domain"
)

// generateBanners renders a banner for every approved market and posts it
// for final review. Markets whose banner was generated in an earlier run
// but never posted are picked up too.
func (r *Runner) generateBanners(ctx context.Context, b *batch) error {
	var ids []string
	for _, status := range []domain.MarketStatus{domain.StatusApproved, domain.StatusBannerGenerated} {
		markets, err := r.deps.Markets.List(ctx, domain.MarketFilter{
			Status:   status,
			ListOpts: domain.ListOpts{Limit: maxPendingPerStage},
		})
		if err != nil {
			return err
		}
		for _, m := range markets {
			ids = append(ids, m.ID)
		}
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := r.withMarket(ctx, id, func(ctx context.Context) error {
			return r.advanceBanner(ctx, b, id)
		}); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) advanceBanner(ctx context.Context, b *batch, id string) error {
	m, err := r.deps.Markets.Get(ctx, id)
	if err != nil {
		return err
	}

	if m.Status == domain.StatusApproved {
		if err := r.renderBanner(ctx, b, &m); err != nil {
			if errors.Is(err, domain.ErrStaleStatus) {
				return nil
			}
			r.fail(ctx, b, &m, "banner", err)
			return nil
		}
	}
	if m.Status != domain.StatusBannerGenerated {
		return nil
	}

	if err := r.requestReview(ctx, b, &m, domain.StageFinal, FinalMessage(m), domain.StatusPendingFinal); err != nil {
		if errors.Is(err, domain.ErrStaleStatus) {
			return nil
		}
		r.fail(ctx, b, &m, "final review", err)
	}
	return nil
}

func (r *Runner) renderBanner(ctx context.Context, b *batch, m *domain.Market) error {
	if err := r.pace(ctx); err != nil {
		return err
	}
	png, err := r.deps.Images.Generate(ctx, BannerPrompt(*m))
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}
	path, url, err := r.deps.Banners.Stage(ctx, m.ID, png)
	if err != nil {
		return fmt.Errorf("stage: %w", err)
	}

	m.BannerPath = path
	m.BannerURL = url
	if err := r.transition(ctx, b, m, domain.StatusBannerGenerated, ""); err != nil {
		return err
	}
	b.count(func(c *domain.RunCounts) { c.Banners++ })
	r.logger.InfoContext(ctx, "banner generated",
		slog.String("market_id", m.ID),
		slog.String("path", path),
		slog.Int("bytes", len(png)),
	)
	return nil
}
