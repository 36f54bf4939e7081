package coremain

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/pmkol/tlesync/mlog"
	"github.com/pmkol/tlesync/pkg/cache"
	"github.com/pmkol/tlesync/pkg/cache/mem_cache"
	"github.com/pmkol/tlesync/pkg/cache/redis_cache"
	"github.com/pmkol/tlesync/pkg/spacetrack"
	"github.com/pmkol/tlesync/pkg/storage"
	"github.com/pmkol/tlesync/pkg/storage/badgerstore"
	"github.com/pmkol/tlesync/pkg/storage/filestore"
	"github.com/pmkol/tlesync/pkg/tlesync"
)

// App holds everything built from a Config.
type App struct {
	cfg    *Config
	logger *zap.Logger

	storage storage.Backend
	cache   *cache.ResultCache
	catalog *spacetrack.Client
	engine  *tlesync.Engine

	metricsReg *prometheus.Registry
}

func NewApp(cfg *Config) (_ *App, err error) {
	lg, err := mlog.NewLogger(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}
	mlog.SetLogger(lg)

	a := &App{
		cfg:        cfg,
		logger:     lg,
		metricsReg: newMetricsReg(),
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.storage, err = newStorage(&cfg.Storage, lg.Named("storage")); err != nil {
		return nil, fmt.Errorf("failed to init storage: %w", err)
	}
	if a.cache, err = newResultCache(&cfg.Cache, lg.Named("cache")); err != nil {
		return nil, fmt.Errorf("failed to init cache: %w", err)
	}

	opts := tlesync.Opts{
		Storage:    a.storage,
		Cache:      a.cache,
		CacheTTL:   time.Duration(cfg.Cache.TTL) * time.Second,
		WindowDays: cfg.Sync.WindowDays,
		Logger:     lg.Named("sync"),
		Metrics:    a.GetMetricsReg(),
	}
	if len(cfg.SpaceTrack.Identity) > 0 {
		a.catalog = spacetrack.New(spacetrack.Opts{
			BaseURL:   cfg.SpaceTrack.URL,
			Identity:  cfg.SpaceTrack.Identity,
			Password:  cfg.SpaceTrack.Password,
			Timeout:   cfg.SpaceTrack.Timeout,
			UserAgent: cfg.SpaceTrack.UserAgent,
			Proxy:     cfg.SpaceTrack.Proxy,
			Logger:    lg.Named("space_track"),
		})
		opts.Catalog = a.catalog
	} else {
		lg.Debug("space-track identity is not configured, remote operations are disabled")
	}

	if a.engine, err = tlesync.NewEngine(opts); err != nil {
		return nil, err
	}
	return a, nil
}

func newStorage(c *StorageConfig, lg *zap.Logger) (storage.Backend, error) {
	switch c.Type {
	case "", "file":
		return filestore.New(filestore.Opts{
			Dir:          c.Dir,
			DirMode:      fs.FileMode(c.DirMode),
			FileMode:     fs.FileMode(c.FileMode),
			LockAttempts: c.LockAttempts,
			LockInterval: time.Duration(c.LockIntervalMs) * time.Millisecond,
			Logger:       lg,
		})
	case "badger":
		if len(c.Dir) == 0 {
			return nil, errors.New("empty storage dir")
		}
		return badgerstore.New(c.Dir)
	default:
		return nil, fmt.Errorf("unknown storage type %q", c.Type)
	}
}

func newResultCache(c *CacheConfig, lg *zap.Logger) (*cache.ResultCache, error) {
	if !c.Enabled {
		return cache.NewResultCache(nil), nil
	}
	switch c.Backend {
	case "", "memory":
		return cache.NewResultCache(mem_cache.NewMemCache(c.Size, time.Minute)), nil
	case "redis":
		opt, err := redis.ParseURL(c.Redis)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		client := redis.NewClient(opt)
		rc, err := redis_cache.NewRedisCache(redis_cache.RedisCacheOpts{
			Client:        client,
			ClientCloser:  client,
			ClientTimeout: time.Duration(c.RedisTimeoutMs) * time.Millisecond,
			Logger:        lg,
		})
		if err != nil {
			client.Close()
			return nil, err
		}
		return cache.NewResultCache(rc), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", c.Backend)
	}
}

func (a *App) Engine() *tlesync.Engine {
	return a.engine
}

func (a *App) Logger() *zap.Logger {
	return a.logger
}

func (a *App) GetMetricsReg() prometheus.Registerer {
	return prometheus.WrapRegistererWithPrefix("tlesync_", a.metricsReg)
}

// Close exports metrics if configured and releases every resource.
func (a *App) Close() error {
	var errs []error
	if p := a.cfg.Metrics.Textfile; len(p) > 0 {
		if err := prometheus.WriteToTextfile(p, a.metricsReg); err != nil {
			errs = append(errs, fmt.Errorf("failed to write metrics: %w", err))
		}
	}
	if a.catalog != nil {
		a.catalog.Close()
	}
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	if a.storage != nil {
		errs = append(errs, a.storage.Close())
	}
	_ = a.logger.Sync()
	return errors.Join(errs...)
}

func newMetricsReg() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(collectors.NewGoCollector())
	return reg
}
