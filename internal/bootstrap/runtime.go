// Package bootstrap assembles the feed session and its backends from configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"animelight/internal/auth"
	"animelight/internal/cache"
	"animelight/internal/config"
	"animelight/internal/database"
	"animelight/internal/featureflags"
	"animelight/internal/feed"
	"animelight/internal/notifications"
	"animelight/internal/observability"
	"animelight/internal/repository"
	"animelight/internal/server"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options override connections InitRuntime would otherwise open itself.
type Options struct {
	DB         *gorm.DB
	Redis      *redis.Client
	Subscriber notifications.Subscriber
	Now        func() time.Time
}

// Runtime is everything the daemon serves, ready for Session.Start.
type Runtime struct {
	DB       *gorm.DB
	Redis    *redis.Client
	Viewer   *auth.Viewer
	Session  *feed.Session
	Listener *notifications.Listener
	Signal   *notifications.Signal
	Alerts   *feed.AlertBuffer
	Hub      *notifications.Hub
	Cache    cache.KV
	Flags    *featureflags.Manager
	Checks   map[string]server.HealthCheck

	closers []func() error
}

// InitRuntime connects to the backend and builds the session for the configured viewer.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	viewer, err := auth.ResolveViewer(cfg.AccessToken, cfg.ViewerID, now())
	if err != nil {
		return nil, fmt.Errorf("resolve viewer: %w", err)
	}

	rt := &Runtime{
		Viewer: viewer,
		Checks: map[string]server.HealthCheck{},
	}

	db := opts.DB
	if db == nil {
		db, err = database.Connect(cfg)
		if err != nil {
			return nil, fmt.Errorf("database connection failed: %w", err)
		}
		rt.closers = append(rt.closers, func() error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		})
	}
	rt.DB = db
	rt.Checks["database"] = func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}

	// Redis is optional unless the cache or the realtime driver needs it.
	rdb := opts.Redis
	if rdb == nil && needsRedis(cfg) {
		rdb, err = cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			observability.GlobalLogger.Warn("redis unavailable", "error", err)
			rdb = nil
		} else {
			client := rdb
			rt.closers = append(rt.closers, client.Close)
		}
	}
	rt.Redis = rdb
	if rdb != nil {
		rt.Checks["redis"] = func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}
	}

	rt.Flags = featureflags.NewManager(cfg.FeatureFlags)
	repo := repository.NewFeedRepository(db)
	fetcher := feed.NewFetcher(repo, viewer.ID,
		feed.WithPageSize(cfg.PageSize),
		feed.WithDetailConcurrency(cfg.DetailConcurrency),
		feed.WithFeatureFlags(rt.Flags),
	)

	kv, err := cache.NewKV(cfg, rdb, viewer.ID)
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("cache backend: %w", err)
	}
	rt.Cache = kv
	if closer, ok := kv.(io.Closer); ok {
		rt.closers = append(rt.closers, closer.Close)
	}
	codec, err := cache.NewCodec(cfg.CacheCodec)
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("cache codec: %w", err)
	}
	persistence := cache.NewPersistence(kv, codec)

	sub := opts.Subscriber
	if sub == nil {
		sub, err = newSubscriber(cfg, rdb)
		if err != nil {
			_ = rt.Close()
			return nil, err
		}
	}

	rt.Signal = notifications.NewSignal()
	rt.Alerts = feed.NewAlertBuffer(0)
	rt.Hub = notifications.NewHub()
	rt.Listener = notifications.NewListener(sub, rt.Signal, notifications.ListenerConfig{
		Topic:          cfg.RealtimeTopic,
		InitialBackoff: time.Duration(cfg.ResubscribeInitialMS) * time.Millisecond,
		MaxBackoff:     time.Duration(cfg.ResubscribeMaxMS) * time.Millisecond,
	})

	rt.Session = feed.NewSession(feed.SessionConfig{
		ViewerID: viewer.ID,
		PageSize: cfg.PageSize,
		Fetcher:  fetcher,
		Mutator:  repo,
		Cache:    persistence,
		Listener: rt.Listener,
		Signal:   rt.Signal,
		Alerts:   rt.Alerts,
		Flags:    rt.Flags,
	})

	observability.GlobalLogger.Info("feed runtime ready",
		"viewer_id", viewer.ID,
		"session_id", rt.Session.ID,
		"cache_backend", cfg.CacheBackend,
		"realtime_driver", cfg.RealtimeDriver,
	)
	return rt, nil
}

func needsRedis(cfg *config.Config) bool {
	return cfg.CacheBackend == config.CacheBackendRedis || cfg.RealtimeDriver == config.RealtimeDriverRedis
}

func newSubscriber(cfg *config.Config, rdb *redis.Client) (notifications.Subscriber, error) {
	switch cfg.RealtimeDriver {
	case config.RealtimeDriverWebsocket:
		return notifications.NewWebsocketSubscriber(cfg.RealtimeURL, nil), nil
	case config.RealtimeDriverRedis, "":
		// A nil client still yields a subscriber; the listener keeps retrying.
		return notifications.NewRedisSubscriber(rdb), nil
	default:
		return nil, fmt.Errorf("unknown realtime driver %q", cfg.RealtimeDriver)
	}
}

// Close releases connections opened by InitRuntime. Stop the session first.
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
