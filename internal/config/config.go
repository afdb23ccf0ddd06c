// Package config loads service settings from defaults, an optional YAML file
// and FACEUNLOCK_* environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override (FACEUNLOCK_SERVER_ADDR, ...).
const EnvPrefix = "FACEUNLOCK"

// Storage backends.
const (
	BackendJSON     = "json"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config holds the service configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	GRPC    GRPCConfig    `mapstructure:"grpc"`
	Log     LogConfig     `mapstructure:"log"`
	Matcher MatcherConfig `mapstructure:"matcher"`
	Storage StorageConfig `mapstructure:"storage"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Auth    AuthConfig    `mapstructure:"auth"`
}

// ServerConfig holds HTTP settings.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// GRPCConfig holds the health service listener. An empty address disables it.
type GRPCConfig struct {
	Addr string `mapstructure:"addr"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// MatcherConfig holds similarity settings.
type MatcherConfig struct {
	Threshold float64 `mapstructure:"threshold"`
}

// StorageConfig selects and locates durable storage.
type StorageConfig struct {
	Backend      string `mapstructure:"backend"`
	ProfilesFile string `mapstructure:"profiles_file"`
	MetricsFile  string `mapstructure:"metrics_file"`
	ImageDir     string `mapstructure:"image_dir"`
	SQLitePath   string `mapstructure:"sqlite_path"`
	PostgresDSN  string `mapstructure:"postgres_dsn"`
}

// RedisConfig holds the result cache. An empty address uses an in-process cache.
type RedisConfig struct {
	Addr      string        `mapstructure:"addr"`
	ResultTTL time.Duration `mapstructure:"result_ttl"`
}

// AuthConfig holds session token settings.
type AuthConfig struct {
	JWTSecret   string        `mapstructure:"jwt_secret"`
	JWTAudience string        `mapstructure:"jwt_audience"`
	TokenTTL    time.Duration `mapstructure:"token_ttl"`
}

// Load reads configuration. configPath may be empty.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindLegacyEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.max_upload_bytes", 5<<20)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("grpc.addr", ":9090")

	v.SetDefault("log.level", "info")

	v.SetDefault("matcher.threshold", 0.7)

	v.SetDefault("storage.backend", BackendJSON)
	v.SetDefault("storage.profiles_file", "data/profiles.json")
	v.SetDefault("storage.metrics_file", "data/metrics.json")
	v.SetDefault("storage.image_dir", "known_faces")
	v.SetDefault("storage.sqlite_path", "data/profiles.db")
	v.SetDefault("storage.postgres_dsn", "")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.result_ttl", 5*time.Minute)

	v.SetDefault("auth.jwt_secret", "dev-secret")
	v.SetDefault("auth.jwt_audience", "")
	v.SetDefault("auth.token_ttl", 15*time.Minute)
}

// bindLegacyEnv keeps the bare variable names used by earlier deployments.
func bindLegacyEnv(v *viper.Viper) {
	legacy := map[string]string{
		"auth.jwt_secret":      "JWT_SECRET",
		"auth.jwt_audience":    "JWT_AUDIENCE",
		"redis.addr":           "REDIS_ADDR",
		"storage.postgres_dsn": "DATABASE_DSN",
	}
	for key, env := range legacy {
		// The prefixed name stays first so it wins over the legacy one.
		_ = v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env)
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error
	if c.Matcher.Threshold < 0 || c.Matcher.Threshold > 1 {
		errs = append(errs, fmt.Errorf("matcher.threshold must be within [0, 1], got %v", c.Matcher.Threshold))
	}
	switch c.Storage.Backend {
	case BackendJSON:
		if c.Storage.ProfilesFile == "" {
			errs = append(errs, errors.New("storage.profiles_file is required for the json backend"))
		}
	case BackendSQLite:
		if c.Storage.SQLitePath == "" {
			errs = append(errs, errors.New("storage.sqlite_path is required for the sqlite backend"))
		}
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("storage.postgres_dsn is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.backend %q", c.Storage.Backend))
	}
	if c.Storage.ImageDir == "" {
		errs = append(errs, errors.New("storage.image_dir is required"))
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("server.max_upload_bytes must be positive"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}
	return errors.Join(errs...)
}
