package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"

	s3blob "github.com/alanyoungcy/listingbot/internal/blob/s3"
	"github.com/alanyoungcy/listingbot/internal/cache/local"
	"github.com/alanyoungcy/listingbot/internal/cache/redis"
	"github.com/alanyoungcy/listingbot/internal/chain"
	"github.com/alanyoungcy/listingbot/internal/config"
	"github.com/alanyoungcy/listingbot/internal/crypto"
	"github.com/alanyoungcy/listingbot/internal/domain"
	"github.com/alanyoungcy/listingbot/internal/notify"
	"github.com/alanyoungcy/listingbot/internal/pipeline"
	"github.com/alanyoungcy/listingbot/internal/platform/discord"
	"github.com/alanyoungcy/listingbot/internal/platform/github"
	"github.com/alanyoungcy/listingbot/internal/platform/openai"
	"github.com/alanyoungcy/listingbot/internal/platform/polymarket"
	"github.com/alanyoungcy/listingbot/internal/platform/slack"
	"github.com/alanyoungcy/listingbot/internal/server/handler"
	"github.com/alanyoungcy/listingbot/internal/store/postgres"
)

// pacerKey is the rate limiter key shared by every outbound API call of
// the pipeline.
const pacerKey = "pipeline:outbound"

// Dependencies bundles what the modes need. It is constructed by Wire and
// torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	Markets   domain.MarketStore
	Approvals domain.ApprovalStore
	Runs      domain.RunStore

	// Coordination
	Locks   domain.LockManager
	Pacer   pipeline.Pacer
	Bus     domain.SignalBus
	Limiter domain.RateLimiter // nil without Redis

	// Health checks by dependency name.
	Checks map[string]handler.Pinger

	// Runner is nil in server mode.
	Runner   *pipeline.Runner
	Notifier *notify.Notifier
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Wire constructs all concrete dependency implementations from cfg and
// returns them together with a cleanup function that should be called on
// shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{Checks: make(map[string]handler.Pinger)}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
	if err != nil {
		return fail(fmt.Errorf("wire: postgres: %w", err))
	}
	closers = append(closers, pgClient.Close)
	deps.Checks["postgres"] = pgClient

	if cfg.Database.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			return fail(fmt.Errorf("wire: postgres migrations: %w", err))
		}
	}

	pool := pgClient.Pool()
	deps.Markets = postgres.NewMarketStore(pool)
	deps.Approvals = postgres.NewApprovalStore(pool)
	deps.Runs = postgres.NewRunStore(pool)

	// --- Redis, or in-process fallbacks ---
	pacing := cfg.Pipeline.RequestPacing.Duration
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		deps.Checks["redis"] = redisClient

		limiter := redis.NewRateLimiter(redisClient, 1, pacing)
		deps.Limiter = limiter
		deps.Pacer = limiter.Pacer(pacerKey)
		deps.Locks = redis.NewLockManager(redisClient)
		deps.Bus = redis.NewSignalBus(redisClient)
	} else {
		logger.Info("redis disabled, using in-process locks and bus")
		deps.Pacer = local.NewPacer(pacing)
		deps.Locks = local.NewLockManager()
		deps.Bus = local.NewBus()
	}

	if !cfg.RunsPipeline() {
		return deps, cleanup, nil
	}

	// --- S3 staging (and optionally asset publishing) ---
	s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
		Endpoint:       cfg.S3.Endpoint,
		Region:         cfg.S3.Region,
		Bucket:         cfg.S3.Bucket,
		AccessKey:      cfg.S3.AccessKey,
		SecretKey:      cfg.S3.SecretKey,
		UseSSL:         cfg.S3.UseSSL,
		ForcePathStyle: cfg.S3.ForcePathStyle,
		PublicBaseURL:  cfg.S3.PublicBaseURL,
	})
	if err != nil {
		return fail(fmt.Errorf("wire: s3: %w", err))
	}
	deps.Checks["s3"] = pingFunc(s3Client.Health)
	banners := s3blob.NewBannerStaging(s3blob.NewWriter(s3Client), s3blob.NewReader(s3Client), cfg.S3.PublicBaseURL)

	var assets domain.AssetRepository
	switch cfg.Assets.Backend {
	case "s3":
		assets = s3blob.NewAssetRepository(s3Client, cfg.Assets.PublicBaseURL)
	default:
		repo, err := github.NewRepository(github.Config{
			APIBaseURL:    cfg.Assets.APIBaseURL,
			Repo:          cfg.Assets.Repo,
			Branch:        cfg.Assets.Branch,
			Token:         cfg.Assets.Token,
			PublicBaseURL: cfg.Assets.PublicBaseURL,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: assets: %w", err))
		}
		assets = repo
	}

	// --- Review channel ---
	var chat domain.ChatClient
	switch cfg.Chat.Platform {
	case "discord":
		chat = discord.NewClient(cfg.Chat.DiscordBaseURL, cfg.Chat.DiscordToken, cfg.Chat.DiscordChannel)
	default:
		chat = slack.NewClient(cfg.Chat.SlackBaseURL, cfg.Chat.SlackToken, cfg.Chat.SlackChannel)
	}

	images := openai.NewImageClient(openai.ImageConfig{
		BaseURL: cfg.OpenAI.BaseURL,
		APIKey:  cfg.OpenAI.APIKey,
		Model:   cfg.OpenAI.Model,
		Size:    cfg.OpenAI.Size,
		Timeout: cfg.OpenAI.Timeout.Duration,
	})

	source := polymarket.NewSource(polymarket.NewGammaClient(cfg.Polymarket.GammaHost, logger), logger)

	// --- Chain ---
	var submitter domain.ChainClient
	if cfg.Chain.Enabled {
		c, closeChain, err := wireChain(ctx, cfg.Chain, logger)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, closeChain)
		submitter = c
	} else {
		logger.Warn("chain submission disabled, deployment stops after asset publish")
	}

	// --- Notifications ---
	senders, err := wireSenders(cfg.Notify, chat)
	if err != nil {
		return fail(err)
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	deps.Runner = pipeline.NewRunner(pipeline.Deps{
		Source:    source,
		Markets:   deps.Markets,
		Approvals: deps.Approvals,
		Runs:      deps.Runs,
		Chat:      chat,
		Images:    images,
		Banners:   banners,
		Assets:    assets,
		Chain:     submitter,
		Locks:     deps.Locks,
		Pacer:     deps.Pacer,
		Bus:       deps.Bus,
		Notifier:  deps.Notifier,
	}, pipeline.Config{
		MaxMarketsPerRun: cfg.Pipeline.MaxMarketsPerRun,
		PageSize:         cfg.Polymarket.PageSize,
		ApprovalTimeout:  cfg.Pipeline.ApprovalTimeout.Duration,
		PlaceholderIcon:  cfg.Pipeline.PlaceholderIcon,
		GenericOptions:   cfg.Pipeline.GenericOptions,
		LockTTL:          cfg.Pipeline.LockTTL.Duration,
		AssetPathPrefix:  cfg.Assets.PathPrefix,
	}, logger)

	return deps, cleanup, nil
}

// wireChain dials the RPC endpoint and builds the market submitter. A nil
// interface is returned on error so callers never hold a typed nil.
func wireChain(ctx context.Context, cfg config.ChainConfig, logger *slog.Logger) (domain.ChainClient, func(), error) {
	key, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    cfg.PrivateKey,
		EncryptedKeyPath: cfg.EncryptedKeyPath,
		KeyPassword:      cfg.KeyPassword,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("wire: chain key: %w", err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	eth, err := ethclient.DialContext(dialCtx, cfg.RPCURL)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: dial rpc: %w", err)
	}

	c, err := chain.NewClient(eth, key, chain.Config{
		ChainID:          cfg.ChainID,
		FactoryAddress:   cfg.FactoryAddress,
		GasLimitFallback: cfg.GasLimitFallback,
		ReceiptTimeout:   cfg.ReceiptTimeout.Duration,
	}, logger)
	if err != nil {
		eth.Close()
		return nil, nil, err
	}
	logger.Info("chain submitter ready",
		slog.String("from", c.From().Hex()),
		slog.Int64("chain_id", cfg.ChainID),
	)
	return c, eth.Close, nil
}

func wireSenders(cfg config.NotifyConfig, chat domain.ChatClient) ([]notify.Sender, error) {
	var senders []notify.Sender
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		tg, err := notify.NewTelegramSender(cfg.TelegramToken, cfg.TelegramChatID, "")
		if err != nil {
			return nil, fmt.Errorf("wire: telegram: %w", err)
		}
		senders = append(senders, tg)
	}
	if cfg.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.DiscordWebhookURL))
	}
	if cfg.ChatSummary {
		senders = append(senders, notify.NewChatSender(chat))
	}
	return senders, nil
}
