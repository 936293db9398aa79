package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"contenthub/internal/config"
	"contenthub/internal/db"
	"contenthub/internal/events"
	"contenthub/internal/logging"
	"contenthub/internal/metrics"
	"contenthub/internal/migrate"
	"contenthub/internal/rediskv"
	"contenthub/internal/remote"
	"contenthub/internal/repo"
	"contenthub/internal/store"
)

// Hub bundles one workspace: its database, journal, store and config.
type Hub struct {
	Workspace string
	Config    *config.Config
	DB        *sql.DB
	Repo      repo.Repo
	Store     *store.Store
	Journal   events.Writer
	Metrics   *metrics.Collector
	Log       logging.Logger

	closers []func() error
}

type Options struct {
	// Config overrides the workspace hub.yml.
	Config *config.Config
	Log    logging.Logger
	Now    func() time.Time
	// NoSeed skips starter data even when the config enables it.
	NoSeed bool
}

// Open prepares the workspace database, builds the configured KV backend and
// loads the store from it.
func Open(ctx context.Context, workspace string, opts Options) (*Hub, error) {
	cfg := opts.Config
	if cfg == nil {
		var err error
		if cfg, err = config.LoadOptional(workspace); err != nil {
			return nil, err
		}
	}
	log := opts.Log
	if log == nil {
		log = logging.Discard()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(ctx, conn, log); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	h := &Hub{
		Workspace: workspace,
		Config:    cfg,
		DB:        conn,
		Repo:      repo.Repo{DB: conn, Now: now},
		Metrics:   metrics.New(),
		Log:       log,
	}
	h.closers = append(h.closers, conn.Close)

	var kv store.KV = h.Repo
	if cfg.Storage.Backend == config.BackendRedis {
		rkv, err := rediskv.Connect(ctx, rediskv.Options{
			Addr:     cfg.Storage.Redis.Addr,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
			Prefix:   cfg.Storage.Redis.Prefix,
		}, log)
		if err != nil {
			h.Close()
			return nil, err
		}
		h.closers = append(h.closers, rkv.Close)
		kv = rkv
	}

	h.Journal = events.Writer{Repo: h.Repo, Now: now, Log: log}
	h.Store = store.New(kv,
		store.WithClock(now),
		store.WithLogger(log),
		store.WithMetrics(h.Metrics),
		store.WithCommitHook(h.Journal.Hook()),
	)
	h.Store.Load(ctx)
	if cfg.Seed.Enabled && !opts.NoSeed {
		h.Store.SeedIfEmpty(ctx)
	}
	return h, nil
}

// Syncer returns the remote syncer when a sync URL is configured.
func (h *Hub) Syncer(client *http.Client) (remote.Syncer, bool) {
	if h.Config.Sync.URL == "" {
		return remote.Syncer{}, false
	}
	return remote.Syncer{
		Store:    h.Store,
		Source:   remote.NewHTTPSource(h.Config.Sync.URL, client, remote.DefaultRetryConfig()),
		Interval: h.Config.Sync.Interval.Duration,
		Log:      h.Log,
		Metrics:  h.Metrics,
	}, true
}

// Close releases the backends in reverse order of acquisition.
func (h *Hub) Close() error {
	var errs []error
	for i := len(h.closers) - 1; i >= 0; i-- {
		if err := h.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	h.closers = nil
	return errors.Join(errs...)
}
