// Package app wires together the copy-trading engine's dependencies and
// owns the top-level process lifecycle.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/mlt-5/copy-trading-dhan-sub001/internal/blob/s3"
	"github.com/mlt-5/copy-trading-dhan-sub001/internal/broker/dhan"
	"github.com/mlt-5/copy-trading-dhan-sub001/internal/cache/redis"
	"github.com/mlt-5/copy-trading-dhan-sub001/internal/config"
	"github.com/mlt-5/copy-trading-dhan-sub001/internal/domain"
	"github.com/mlt-5/copy-trading-dhan-sub001/internal/funds"
	"github.com/mlt-5/copy-trading-dhan-sub001/internal/instrument"
	"github.com/mlt-5/copy-trading-dhan-sub001/internal/notify"
	"github.com/mlt-5/copy-trading-dhan-sub001/internal/ratelimit"
	"github.com/mlt-5/copy-trading-dhan-sub001/internal/recovery"
	"github.com/mlt-5/copy-trading-dhan-sub001/internal/replicator"
	"github.com/mlt-5/copy-trading-dhan-sub001/internal/sizer"
	"github.com/mlt-5/copy-trading-dhan-sub001/internal/store/postgres"
	"github.com/mlt-5/copy-trading-dhan-sub001/internal/stream"
	"github.com/mlt-5/copy-trading-dhan-sub001/internal/supervisor"
)

// Dependencies bundles every constructed component the application modes
// need to operate. It is built by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	Store domain.Store

	LeaderBroker   domain.Broker
	FollowerBroker domain.Broker

	RateLimiter domain.RateLimiter
	Instruments *instrument.Cache
	LeaderFunds *funds.Snapshotter
	FollowerFunds *funds.Snapshotter
	Notifier    *notify.Notifier
	Archiver    *s3blob.Archiver

	Replicator *replicator.Replicator
	Consumer   *stream.Consumer
	Recovery   *recovery.Recovery
	Supervisor *supervisor.Supervisor
}

func allowListProducts(names []string) map[domain.ProductType]bool {
	allowed := make(map[domain.ProductType]bool, len(names))
	for _, n := range names {
		allowed[domain.ProductType(strings.ToUpper(strings.TrimSpace(n)))] = true
	}
	return allowed
}

func allowListSegments(names []string) map[string]bool {
	allowed := make(map[string]bool, len(names))
	for _, n := range names {
		allowed[strings.ToUpper(strings.TrimSpace(n))] = true
	}
	return allowed
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that must
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL: the system of record for orders, mappings, bracket
	// legs, events, funds snapshots, instruments, and the audit log. ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Supabase.DSN,
		Host:     cfg.Supabase.Host,
		Port:     cfg.Supabase.Port,
		Database: cfg.Supabase.Database,
		User:     cfg.Supabase.User,
		Password: cfg.Supabase.Password,
		SSLMode:  cfg.Supabase.SSLMode,
		MaxConns: cfg.Supabase.PoolMaxConns,
		MinConns: cfg.Supabase.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Supabase.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	store := postgres.NewStore(pgClient.Pool())
	deps.Store = store

	// --- Redis: balance cache and cross-process per-order lock, shared
	// across processes. Wire fails if Redis is unreachable at startup. At
	// runtime a balance cache miss falls through to the broker, while a lock
	// acquisition error makes Handle return that error for the event. ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })
	fundsCache := redis.NewFundsCache(redisClient, cfg.Copy.FundsTTL.Duration)
	distLock := redis.NewLockManager(redisClient)

	// --- Dhan broker clients, one per account. ---
	leaderBroker := dhan.New(domain.AccountLeader, cfg.Dhan, cfg.Leader)
	followerBroker := dhan.New(domain.AccountFollower, cfg.Dhan, cfg.Follower)
	deps.LeaderBroker = leaderBroker
	deps.FollowerBroker = followerBroker

	// --- In-process rate limiting, one sliding window per account so a
	// leader-side burst never throttles follower order placement. ---
	deps.RateLimiter = ratelimit.NewRegistry(cfg.Dhan.MaxRequestsPerSec)

	deps.Instruments = instrument.New(followerBroker, store, deps.RateLimiter)
	deps.LeaderFunds = funds.New(leaderBroker, fundsCache, store)
	deps.FollowerFunds = funds.New(followerBroker, fundsCache, store)

	// --- Notifications: a single Telegram sender, configured or nil. ---
	var sender notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		sender = notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		)
	}
	deps.Notifier = notify.NewNotifier(sender, cfg.Notify.Events, logger)

	// --- S3-compatible cold storage for archiving orders (of any status),
	// events, and audit rows once they age past the retention window. ---
	s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
		Endpoint:       cfg.S3.Endpoint,
		Region:         cfg.S3.Region,
		Bucket:         cfg.S3.Bucket,
		AccessKey:      cfg.S3.AccessKey,
		SecretKey:      cfg.S3.SecretKey,
		UseSSL:         cfg.S3.UseSSL,
		ForcePathStyle: cfg.S3.ForcePathStyle,
	})
	if err != nil {
		logger.WarnContext(ctx, "s3 archival storage unavailable, archival disabled",
			slog.String("error", err.Error()))
	} else {
		closers = append(closers, func() { _ = s3Client.Close() })
		writer := s3blob.NewWriter(s3Client)
		deps.Archiver = s3blob.NewArchiver(writer, store, store, store)
	}

	replicatorCfg := replicator.Config{
		SizingStrategy:    sizer.Strategy(cfg.Copy.SizingStrategy),
		FixedRatio:        fixedRatioFor(cfg.Copy),
		MaxPositionPct:    cfg.Copy.MaxPositionPct,
		RiskPerTradePct:   cfg.Copy.RiskPerTradePct,
		AllowedProducts:   allowListProducts(cfg.Copy.AllowedProducts),
		AllowedSegments:   allowListSegments(cfg.Copy.AllowedSegments),
		SkewWarnThreshold: cfg.Copy.SkewWarnThreshold.Duration,
	}

	deps.Replicator = replicator.New(
		store,
		followerBroker,
		deps.LeaderFunds,
		deps.FollowerFunds,
		deps.Instruments,
		deps.RateLimiter,
		deps.Notifier,
		distLock,
		replicatorCfg,
		logger,
	)

	deps.Recovery = recovery.New(
		leaderBroker,
		store,
		deps.Replicator,
		cfg.Copy.RecoveryLookback.Duration,
		logger,
	)

	deps.Consumer = stream.New(
		leaderBroker,
		deps.Replicator,
		deps.Recovery,
		stream.Config{
			HeartbeatTimeout:     cfg.Copy.HeartbeatTimeout.Duration,
			MaxReconnectAttempts: cfg.Copy.MaxReconnectAttempts,
		},
		logger,
	)

	// deps.Archiver is a typed *s3blob.Archiver; passed directly it would
	// produce a non-nil Archiver interface wrapping a nil pointer whenever S3
	// was unavailable, so it's only forwarded when actually constructed.
	var archiver supervisor.Archiver
	if deps.Archiver != nil {
		archiver = deps.Archiver
	}

	deps.Supervisor = supervisor.New(
		leaderBroker,
		followerBroker,
		deps.Consumer,
		deps.Recovery,
		deps.Replicator,
		archiver,
		supervisor.Config{
			DrainTimeout: cfg.Copy.DrainTimeout.Duration,
			ArchiveAfter: cfg.S3.ArchiveAfter.Duration,
		},
		logger,
	)

	return deps, cleanup, nil
}

// fixedRatioFor returns the multiplier sizer.Compute should apply for
// fixed_ratio sizing. capital_proportional and risk_based ignore this field,
// but CapitalRatio doubles as the fixed_ratio multiplier when the operator
// has only set one of the two equivalent config keys.
func fixedRatioFor(cfg config.CopyConfig) float64 {
	if cfg.FixedRatio > 0 {
		return cfg.FixedRatio
	}
	return cfg.CapitalRatio
}
