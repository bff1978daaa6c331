package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store        StoreConfig        `yaml:"store" mapstructure:"store"`
	Backend      BackendConfig      `yaml:"backend" mapstructure:"backend"`
	Worker       WorkerConfig       `yaml:"worker" mapstructure:"worker"`
	Location     LocationConfig     `yaml:"location" mapstructure:"location"`
	Geofence     GeofenceConfig     `yaml:"geofence" mapstructure:"geofence"`
	Queue        QueueConfig        `yaml:"queue" mapstructure:"queue"`
	Connectivity ConnectivityConfig `yaml:"connectivity" mapstructure:"connectivity"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the durable store backend. The sqlite driver is the
// single-device default; postgres serves shared kiosk deployments.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// BackendConfig holds the clock backend API settings.
type BackendConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Token   string `yaml:"token" mapstructure:"token"`
}

// WorkerConfig identifies the worker and their supervisor on this device.
type WorkerConfig struct {
	ID           string `yaml:"id" mapstructure:"id"`
	SupervisorID string `yaml:"supervisor_id" mapstructure:"supervisor_id"`
}

// LocationConfig tunes the location fallback chain.
type LocationConfig struct {
	PrimaryTimeoutSecs int `yaml:"primary_timeout_secs" mapstructure:"primary_timeout_secs"`
	RetryTimeoutSecs   int `yaml:"retry_timeout_secs" mapstructure:"retry_timeout_secs"`
}

// GeofenceConfig tunes evaluation behavior.
type GeofenceConfig struct {
	GraceWindowMins    int  `yaml:"grace_window_mins" mapstructure:"grace_window_mins"`
	AlertCooldownMins  int  `yaml:"alert_cooldown_mins" mapstructure:"alert_cooldown_mins"`
	RequireMultiSignal bool `yaml:"require_multi_signal" mapstructure:"require_multi_signal"`
}

// QueueConfig tunes the drain retry policy.
type QueueConfig struct {
	BackoffInitialSecs int     `yaml:"backoff_initial_secs" mapstructure:"backoff_initial_secs"`
	BackoffMaxMins     int     `yaml:"backoff_max_mins" mapstructure:"backoff_max_mins"`
	BackoffMultiplier  float64 `yaml:"backoff_multiplier" mapstructure:"backoff_multiplier"`
	BackoffJitter      float64 `yaml:"backoff_jitter" mapstructure:"backoff_jitter"`
}

// ConnectivityConfig configures the reachability prober.
type ConnectivityConfig struct {
	ProbeURL                string `yaml:"probe_url" mapstructure:"probe_url"`
	IntervalSecs            int    `yaml:"interval_secs" mapstructure:"interval_secs"`
	MaxTransitionsPerMinute int    `yaml:"max_transitions_per_minute" mapstructure:"max_transitions_per_minute"`
}

// ServerConfig configures the local supervisor/sync HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// PrimaryTimeout returns the high-accuracy fix timeout as a duration.
func (l LocationConfig) PrimaryTimeout() time.Duration {
	return time.Duration(l.PrimaryTimeoutSecs) * time.Second
}

// RetryTimeout returns the lower-tier retry timeout as a duration.
func (l LocationConfig) RetryTimeout() time.Duration {
	return time.Duration(l.RetryTimeoutSecs) * time.Second
}

// Validate checks that everything a mode needs is present. Modes: "clock"
// (worker clock actions), "serve" (supervisor/sync HTTP server), "sites"
// (job site import).
func (c *Config) Validate(mode string) error {
	var problems []string

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			problems = append(problems, "store.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for the postgres driver")
		}
	default:
		problems = append(problems, "store.driver must be sqlite or postgres")
	}

	switch mode {
	case "clock":
		if c.Backend.BaseURL == "" {
			problems = append(problems, "backend.base_url is required")
		}
		if c.Worker.ID == "" {
			problems = append(problems, "worker.id is required")
		}
		if c.Location.PrimaryTimeoutSecs <= 0 {
			problems = append(problems, "location.primary_timeout_secs must be > 0")
		}
		if c.Geofence.GraceWindowMins < 0 {
			problems = append(problems, "geofence.grace_window_mins must be >= 0")
		}
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	case "sites":
		// Store checks above are sufficient.
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("FIELDCLOCK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "fieldclock.db")
	v.SetDefault("backend.base_url", "https://clock.brushhour.dev")
	v.SetDefault("location.primary_timeout_secs", 10)
	v.SetDefault("location.retry_timeout_secs", 3)
	v.SetDefault("geofence.grace_window_mins", 5)
	v.SetDefault("geofence.alert_cooldown_mins", 15)
	v.SetDefault("geofence.require_multi_signal", true)
	v.SetDefault("queue.backoff_initial_secs", 30)
	v.SetDefault("queue.backoff_max_mins", 15)
	v.SetDefault("queue.backoff_multiplier", 2.0)
	v.SetDefault("queue.backoff_jitter", 0.2)
	v.SetDefault("connectivity.probe_url", "https://clients3.google.com/generate_204")
	v.SetDefault("connectivity.interval_secs", 15)
	v.SetDefault("connectivity.max_transitions_per_minute", 6)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
