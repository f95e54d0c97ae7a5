// Package app is the composition root shared by the dedup command and the
// embeddable client: it opens the storage driver, loads the registry and
// builds the services on top of it.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/dedup/internal/config"
	"github.com/kailas-cloud/dedup/internal/db"
	dbBleve "github.com/kailas-cloud/dedup/internal/db/bleve"
	"github.com/kailas-cloud/dedup/internal/db/memory"
	dbRedis "github.com/kailas-cloud/dedup/internal/db/redis"
	"github.com/kailas-cloud/dedup/internal/engine"
	"github.com/kailas-cloud/dedup/internal/engine/ngram"
	"github.com/kailas-cloud/dedup/internal/metrics"
	"github.com/kailas-cloud/dedup/internal/registry"
	dedupuc "github.com/kailas-cloud/dedup/internal/usecase/dedup"
	healthuc "github.com/kailas-cloud/dedup/internal/usecase/health"
)

const defaultReadinessTimeout = 10 * time.Second

// Options configures New.
type Options struct {
	WorkDir    string
	ConfigFile string

	Driver           string
	Redis            dbRedis.Config
	ReadinessTimeout time.Duration

	MinSimilarity float64
	MaxCandidates int
	CacheSize     int

	DefaultQuantity int
	SearchTimeout   time.Duration

	Logger *zap.Logger
}

// App holds the wired services. Close releases every index and connection.
type App struct {
	Registry *registry.Registry
	Service  *dedupuc.Service
	Health   *healthuc.Service

	redis *dbRedis.Store
}

// New opens the configured driver, loads the registry and wires the services.
func New(ctx context.Context, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.RegisterEngineMetrics()

	a := &App{}
	pingers := make(map[string]healthuc.Pinger)

	var backend func(name, path string) (db.Backend, error)
	switch opts.Driver {
	case config.DriverMemory:
		backend = func(string, string) (db.Backend, error) { return memory.New(), nil }
	case config.DriverBleve, "":
		backend = func(_, path string) (db.Backend, error) { return dbBleve.Open(path) }
	case config.DriverRedis:
		store, err := dbRedis.NewStore(opts.Redis)
		if err != nil {
			return nil, fmt.Errorf("create redis store: %w", err)
		}
		timeout := opts.ReadinessTimeout
		if timeout <= 0 {
			timeout = defaultReadinessTimeout
		}
		if err := store.WaitForReady(ctx, timeout); err != nil {
			store.Close()
			return nil, fmt.Errorf("redis not ready: %w", err)
		}
		a.redis = store
		pingers["redis"] = store
		backend = func(name, _ string) (db.Backend, error) { return store.Backend(name), nil }
	default:
		return nil, fmt.Errorf("%w: %q", db.ErrUnknownDriver, opts.Driver)
	}

	matcher := ngram.New(opts.MinSimilarity)
	open := func(name, path string) (engine.Index, error) {
		b, err := backend(name, path)
		if err != nil {
			return nil, err
		}
		h, err := engine.NewHandle(name, b, matcher, engine.Options{
			MaxCandidates: opts.MaxCandidates,
			CacheSize:     opts.CacheSize,
			Logger:        logger.With(zap.String("index", name)),
		})
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		pingers["index:"+name] = h
		return h, nil
	}

	reg, err := registry.Load(opts.WorkDir, opts.ConfigFile, open)
	if err != nil {
		a.closeRedis()
		return nil, fmt.Errorf("load registry: %w", err)
	}
	a.Registry = reg

	a.Service = dedupuc.New(reg, dedupuc.Config{
		DefaultQuantity: opts.DefaultQuantity,
		SearchTimeout:   opts.SearchTimeout,
	}, logger)
	a.Health = healthuc.New(pingers)

	logger.Info("Registry loaded",
		zap.String("driver", driverName(opts.Driver)),
		zap.Strings("schemas", reg.SchemaNames()),
		zap.Strings("indexes", reg.IndexNames()),
	)
	return a, nil
}

// Close closes every index, then the shared Redis connection if any.
func (a *App) Close() error {
	var err error
	if a.Registry != nil {
		err = a.Registry.Close()
	}
	a.closeRedis()
	return err
}

func (a *App) closeRedis() {
	if a.redis != nil {
		a.redis.Close()
		a.redis = nil
	}
}

func driverName(d string) string {
	if d == "" {
		return config.DriverBleve
	}
	return d
}
