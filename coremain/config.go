package coremain

import (
	"time"

	"github.com/pmkol/tlesync/mlog"
	"github.com/pmkol/tlesync/pkg/spacetrack"
)

type Config struct {
	Log        mlog.LogConfig   `yaml:"log"`
	Storage    StorageConfig    `yaml:"storage"`
	SpaceTrack SpaceTrackConfig `yaml:"space_track"`
	Cache      CacheConfig      `yaml:"cache"`
	Sync       SyncConfig       `yaml:"sync"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

type StorageConfig struct {
	// Type is "file" or "badger".
	Type           string `yaml:"type"`
	Dir            string `yaml:"dir"`
	DirMode        uint32 `yaml:"dir_mode"`
	FileMode       uint32 `yaml:"file_mode"`
	LockAttempts   int    `yaml:"lock_attempts"`
	LockIntervalMs int    `yaml:"lock_interval_ms"`
}

type SpaceTrackConfig struct {
	URL       string           `yaml:"url"`
	Identity  string           `yaml:"identity"`
	Password  string           `yaml:"password"`
	Timeout   time.Duration    `yaml:"timeout"`
	UserAgent string           `yaml:"user_agent"`
	Proxy     spacetrack.Proxy `yaml:"proxy"`
}

type CacheConfig struct {
	Enabled bool `yaml:"enabled"`
	// Backend is "memory" or "redis".
	Backend string `yaml:"backend"`
	Size    int    `yaml:"size"`
	// TTL in seconds.
	TTL            int    `yaml:"ttl"`
	Redis          string `yaml:"redis"`
	RedisTimeoutMs int    `yaml:"redis_timeout_ms"`
}

type SyncConfig struct {
	WindowDays int           `yaml:"window_days"`
	Interval   time.Duration `yaml:"interval"`
}

type MetricsConfig struct {
	// Textfile receives all metrics in the text exposition format
	// when the app closes.
	Textfile string `yaml:"textfile"`
	// Listen serves /metrics while the daemon runs.
	Listen string `yaml:"listen"`
}

var defaultConfig = map[string]any{
	"log.level":      "info",
	"log.file":       "",
	"log.production": false,

	"storage.type":             "file",
	"storage.dir":              "./tle",
	"storage.dir_mode":         0o775,
	"storage.file_mode":        0,
	"storage.lock_attempts":    10,
	"storage.lock_interval_ms": 100,

	"space_track.url":            "https://www.space-track.org",
	"space_track.identity":       "",
	"space_track.password":       "",
	"space_track.timeout":        "30s",
	"space_track.user_agent":     "",
	"space_track.proxy.host":     "",
	"space_track.proxy.port":     0,
	"space_track.proxy.login":    "",
	"space_track.proxy.password": "",

	"cache.enabled":          true,
	"cache.backend":          "memory",
	"cache.size":             1024,
	"cache.ttl":              21600,
	"cache.redis":            "",
	"cache.redis_timeout_ms": 1000,

	"sync.window_days": 5,
	"sync.interval":    "6h",

	"metrics.textfile": "",
	"metrics.listen":   "",
}

const masked = "******"

// redacted returns a copy of cfg safe to print.
func (cfg Config) redacted() Config {
	if len(cfg.SpaceTrack.Password) > 0 {
		cfg.SpaceTrack.Password = masked
	}
	if len(cfg.SpaceTrack.Proxy.Password) > 0 {
		cfg.SpaceTrack.Proxy.Password = masked
	}
	return cfg
}
