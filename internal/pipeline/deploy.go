package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/listingbot/internal/domain"
)

var errNoExpiry = errors.New("market has no expiry")

// deploy publishes the banner of every final-approved market and creates
// the market on chain.
func (r *Runner) deploy(ctx context.Context, b *batch) error {
	markets, err := r.deps.Markets.List(ctx, domain.MarketFilter{
		Status:   domain.StatusFinalApproved,
		ListOpts: domain.ListOpts{Limit: maxPendingPerStage},
	})
	if err != nil {
		return err
	}

	for _, m := range markets {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		id := m.ID
		if err := r.withMarket(ctx, id, func(ctx context.Context) error {
			return r.deployOne(ctx, b, id)
		}); err != nil {
			return err
		}
	}
	return nil
}

// AssetPath is where the public banner of m is published.
func AssetPath(prefix string, m domain.Market) string {
	return strings.TrimSuffix(prefix, "/") + "/" + m.SafeID() + ".png"
}

// deployOne publishes and submits m, then marks it deployed. The submission
// is recorded before the status write, and a market that already carries a
// transaction hash is never submitted again.
func (r *Runner) deployOne(ctx context.Context, b *batch, id string) error {
	m, err := r.deps.Markets.Get(ctx, id)
	if err != nil {
		return err
	}
	if m.Status != domain.StatusFinalApproved {
		return nil
	}

	if m.TxHash != "" {
		r.logger.InfoContext(ctx, "market already submitted, finishing deployment",
			slog.String("market_id", m.ID),
			slog.String("tx_hash", m.TxHash),
		)
	} else {
		if err := r.publishAndSubmit(ctx, &m); err != nil {
			r.fail(ctx, b, &m, "deploy", err)
			return nil
		}
		if err := r.deps.Markets.Update(ctx, m); err != nil {
			if errors.Is(err, domain.ErrStaleStatus) {
				return nil
			}
			r.logger.WarnContext(ctx, "record deployment failed",
				slog.String("market_id", m.ID),
				slog.String("tx_hash", m.TxHash),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := r.transitionRetry(ctx, b, &m, domain.StatusDeployed, ""); err != nil {
		if errors.Is(err, domain.ErrStaleStatus) {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// The market stays final_approved; the next run finishes it.
		r.logger.ErrorContext(ctx, "mark deployed failed",
			slog.String("market_id", m.ID),
			slog.String("tx_hash", m.TxHash),
			slog.String("error", err.Error()),
		)
		b.failure(m.ID, "deploy: mark deployed: "+err.Error())
		return nil
	}
	b.count(func(c *domain.RunCounts) { c.Deployed++ })
	r.logger.InfoContext(ctx, "market deployed",
		slog.String("market_id", m.ID),
		slog.String("asset_url", m.AssetURL),
		slog.String("tx_hash", m.TxHash),
	)
	return nil
}

func (r *Runner) publishAndSubmit(ctx context.Context, m *domain.Market) error {
	if r.deps.Chain != nil && m.ExpiresAt == nil {
		return errNoExpiry
	}
	if m.BannerPath == "" {
		return errors.New("no staged banner")
	}

	png, err := r.deps.Banners.Load(ctx, m.BannerPath)
	if err != nil {
		return fmt.Errorf("load banner: %w", err)
	}
	if err := r.pace(ctx); err != nil {
		return err
	}
	asset, err := r.deps.Assets.Publish(ctx, AssetPath(r.cfg.AssetPathPrefix, *m), png)
	if err != nil {
		return fmt.Errorf("publish asset: %w", err)
	}
	m.AssetURL = asset.URL
	m.AssetRevision = asset.Revision

	if r.deps.Chain == nil {
		return nil
	}
	if err := r.pace(ctx); err != nil {
		return err
	}
	receipt, err := r.deps.Chain.Submit(ctx, domain.ChainMarket{
		Question:  m.Question,
		Options:   m.Options,
		Expiry:    *m.ExpiresAt,
		Category:  m.Category,
		BannerURL: asset.URL,
	})
	m.TxHash = receipt.TxHash
	if err != nil {
		return fmt.Errorf("submit market: %w", err)
	}
	m.OnchainID = receipt.MarketID
	return nil
}
