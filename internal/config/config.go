package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config captures the runtime configuration for the dashboard service.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Realtime      RealtimeConfig      `mapstructure:"realtime"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	ListenAddr            string        `mapstructure:"listen_addr"`
	BodyLimitMB           int           `mapstructure:"body_limit_mb"`
	ReadTimeout           time.Duration `mapstructure:"read_timeout"`
	IdleTimeout           time.Duration `mapstructure:"idle_timeout"`
	GracefulShutdownDelay time.Duration `mapstructure:"graceful_shutdown_delay"`
}

type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	RunMigrations   bool          `mapstructure:"run_migrations"`
	MigrationsDir   string        `mapstructure:"migrations_dir"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

type RedisConfig struct {
	URL      string `mapstructure:"url"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// RealtimeConfig tunes the change-feed coordinator. Owner is the row-scoping
// key of the single tenant this deployment serves; when empty, no coordinator
// is started and views are computed per request only.
type RealtimeConfig struct {
	Owner             string        `mapstructure:"owner"`
	Debounce          time.Duration `mapstructure:"debounce"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	HeartbeatEnabled  bool          `mapstructure:"heartbeat_enabled"`
}

// MetricsConfig tunes the aggregation layer.
type MetricsConfig struct {
	FetchTimeout       time.Duration `mapstructure:"fetch_timeout"`
	DefaultPlan        string        `mapstructure:"default_plan"`
	DefaultCredits     int64         `mapstructure:"default_credits"`
	BucketWidth        time.Duration `mapstructure:"bucket_width"`
	BucketCount        int           `mapstructure:"bucket_count"`
	CostPerTokenUSD    float64       `mapstructure:"cost_per_token_usd"`
	RecentActivityMax  int           `mapstructure:"recent_activity_max"`
	RealtimeWindowSize time.Duration `mapstructure:"realtime_window"`
}

type ObservabilityConfig struct {
	EnableOTLP    bool   `mapstructure:"enable_otlp"`
	EnableMetrics bool   `mapstructure:"enable_metrics"`
	OTLPEndpoint  string `mapstructure:"otlp_endpoint"`
}

// Options controls the config loader behavior.
type Options struct {
	ConfigFile string
	EnvFile    string
}

// Load returns the merged configuration sourced from YAML and environment variables.
func Load(opts Options) (*Config, error) {
	if opts.EnvFile != "" {
		_ = godotenv.Load(opts.EnvFile)
	} else {
		_ = godotenv.Load()
	}

	v := viper.New()
	setDefaults(v)

	explicitFile := false
	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		explicitFile = true
	} else {
		if cfg := os.Getenv("DASHD_CONFIG_FILE"); cfg != "" {
			v.SetConfigFile(cfg)
			explicitFile = true
		}
	}

	if !explicitFile {
		// Allow standard lookup locations when no explicit file is provided.
		v.SetConfigName("dashboard")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("DASHD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(timeStringToDurationHook())); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate ensures required values are set and tunables are sane.
func (c *Config) Validate() error {
	var missing []string

	if c.Database.URL == "" {
		missing = append(missing, "DASHD_DATABASE_URL")
	}
	if c.Redis.URL == "" {
		missing = append(missing, "DASHD_REDIS_URL")
	}
	if c.Auth.JWTSecret == "" {
		missing = append(missing, "DASHD_AUTH_JWT_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	if c.Realtime.Debounce <= 0 {
		return fmt.Errorf("realtime.debounce must be positive")
	}
	if c.Metrics.BucketCount <= 0 {
		return fmt.Errorf("metrics.bucket_count must be positive")
	}
	if c.Metrics.BucketWidth <= 0 {
		return fmt.Errorf("metrics.bucket_width must be positive")
	}
	if c.Metrics.CostPerTokenUSD < 0 {
		return fmt.Errorf("metrics.cost_per_token_usd cannot be negative")
	}
	if c.Metrics.RecentActivityMax > 100 {
		return fmt.Errorf("metrics.recent_activity_max cannot exceed 100")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("server.body_limit_mb", 1)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.graceful_shutdown_delay", "5s")

	// Keys without another default still need to be registered so
	// AutomaticEnv picks them up during Unmarshal.
	v.SetDefault("database.url", "")
	v.SetDefault("database.run_migrations", true)
	v.SetDefault("database.migrations_dir", "migrations")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_idle_time", "5m")
	v.SetDefault("database.max_conn_lifetime", "30m")

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("auth.jwt_secret", "")

	v.SetDefault("realtime.owner", "")

	v.SetDefault("realtime.debounce", "250ms")
	v.SetDefault("realtime.poll_interval", "30s")
	v.SetDefault("realtime.heartbeat_interval", "30s")
	v.SetDefault("realtime.heartbeat_enabled", true)

	v.SetDefault("metrics.fetch_timeout", "10s")
	v.SetDefault("metrics.default_plan", "free")
	v.SetDefault("metrics.default_credits", 1000)
	v.SetDefault("metrics.bucket_width", "1m")
	v.SetDefault("metrics.bucket_count", 60)
	v.SetDefault("metrics.cost_per_token_usd", 0.000002)
	v.SetDefault("metrics.recent_activity_max", 20)
	v.SetDefault("metrics.realtime_window", "1h")

	v.SetDefault("observability.enable_otlp", false)
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.otlp_endpoint", "http://localhost:4317")
}

func timeStringToDurationHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case time.Duration:
			return v, nil
		case string:
			d, err := time.ParseDuration(v)
			if err != nil {
				return nil, err
			}
			return d, nil
		default:
			return nil, fmt.Errorf("cannot decode %T into time.Duration", data)
		}
	}
}
