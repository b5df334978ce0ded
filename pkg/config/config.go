// Package config loads service configuration for policyd and telemetryd
// from an optional TOML file, PANTHER_-prefixed environment variables, and
// the legacy unprefixed names the deployed fleet still sets.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	toml "github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix for environment variables. Nested keys use single
// underscores; a double underscore keeps a literal underscore in the key
// (PANTHER_POLICYD_DB__PATH -> policyd.db_path).
const EnvPrefix = "PANTHER_"

type Config struct {
	Policyd       PolicydConfig       `koanf:"policyd"`
	Telemetryd    TelemetrydConfig    `koanf:"telemetryd"`
	Auth          AuthConfig          `koanf:"auth"`
	Database      DatabaseConfig      `koanf:"database"`
	Cache         CacheConfig         `koanf:"cache"`
	Archive       ArchiveConfig       `koanf:"archive"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// PolicydConfig holds the policy service settings.
type PolicydConfig struct {
	// ListenAddr is the HTTP listen address.
	ListenAddr string `koanf:"listen_addr"`

	// DBPath is the SQLite database path, used unless database.url is set.
	DBPath string `koanf:"db_path"`

	// SeedFile is an optional YAML policy seed file loaded at startup.
	// Empty means the built-in default policy is seeded instead.
	SeedFile string `koanf:"seed_file"`

	// VerifyKey enables policy signature verification when non-empty:
	// uploaded policy signatures must be HS256 JWS tokens under this key.
	VerifyKey string `koanf:"verify_key"`
}

// TelemetrydConfig holds the telemetry ingestion service settings.
type TelemetrydConfig struct {
	ListenAddr string `koanf:"listen_addr"`
	DBPath     string `koanf:"db_path"`
}

// AuthConfig holds the shared static bearer token. Empty disables auth.
type AuthConfig struct {
	APIToken string `koanf:"api_token"`
}

// DatabaseConfig selects Postgres when URL is set; SQLite otherwise.
type DatabaseConfig struct {
	URL string `koanf:"url"`
}

// CacheConfig holds the optional Redis policy cache settings.
type CacheConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Addr     string        `koanf:"addr"`
	Password string        `koanf:"password"`
	DB       int           `koanf:"db"`
	TTL      time.Duration `koanf:"ttl"`
}

// ArchiveConfig holds the report artifact archive settings.
type ArchiveConfig struct {
	// Backend is "fs", "s3", or "gcs". Empty disables archival.
	Backend string `koanf:"backend"`

	// Dir is the root directory for the fs backend.
	Dir string `koanf:"dir"`

	// Bucket names the S3 or GCS bucket.
	Bucket string `koanf:"bucket"`

	// Prefix is prepended to object keys.
	Prefix string `koanf:"prefix"`

	// Endpoint overrides the S3 endpoint, for MinIO-style deployments.
	Endpoint string `koanf:"endpoint"`

	// Region is the S3 region.
	Region string `koanf:"region"`
}

// ObservabilityConfig holds OpenTelemetry exporter settings.
type ObservabilityConfig struct {
	Enabled bool `koanf:"enabled"`

	// Endpoint is the OTLP gRPC endpoint (host:port).
	Endpoint string `koanf:"endpoint"`

	// Insecure disables TLS on the exporter connection.
	Insecure bool `koanf:"insecure"`

	// SampleRatio is the trace sampling ratio (0.0 to 1.0].
	SampleRatio float64 `koanf:"sample_ratio"`
}

// Load reads configuration with priority: legacy environment variables >
// prefixed environment variables > config file > defaults.
func Load(configPath string) (*Config, error) {
	cfg := defaultConfig()

	k := koanf.New(".")

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Double underscores (__) preserve literal underscores in key names.
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		s = strings.ToLower(s)
		s = strings.ReplaceAll(s, "__", "%UNDERSCORE%")
		s = strings.ReplaceAll(s, "_", ".")
		s = strings.ReplaceAll(s, "%UNDERSCORE%", "_")
		return s
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			TagName:          "koanf",
			WeaklyTypedInput: true,
			Result:           cfg,
			DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyLegacyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyLegacyEnv maps the unprefixed names the original deployments set.
// They win over both the file and the prefixed variables so existing units
// keep working unchanged.
func applyLegacyEnv(cfg *Config) {
	if v := os.Getenv("POLICY_DB_PATH"); v != "" {
		cfg.Policyd.DBPath = v
	}
	if v := os.Getenv("TELEMETRY_DB_PATH"); v != "" {
		cfg.Telemetryd.DBPath = v
	}
	if v := os.Getenv("API_TOKEN"); v != "" {
		cfg.Auth.APIToken = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
}

func defaultConfig() *Config {
	return &Config{
		Policyd: PolicydConfig{
			ListenAddr: ":8082",
			DBPath:     "data/policy.db",
		},
		Telemetryd: TelemetrydConfig{
			ListenAddr: ":8081",
			DBPath:     "data/telemetry.db",
		},
		Cache: CacheConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			TTL:     5 * time.Minute,
		},
		Archive: ArchiveConfig{
			Backend: "",
			Dir:     "data/artifacts",
		},
		Observability: ObservabilityConfig{
			Enabled:     false,
			Endpoint:    "localhost:4317",
			Insecure:    true,
			SampleRatio: 1.0,
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Policyd.ListenAddr == "" {
		return fmt.Errorf("policyd.listen_addr is required")
	}
	if c.Telemetryd.ListenAddr == "" {
		return fmt.Errorf("telemetryd.listen_addr is required")
	}

	if c.Database.URL == "" {
		if c.Policyd.DBPath == "" {
			return fmt.Errorf("policyd.db_path is required when database.url is unset")
		}
		if c.Telemetryd.DBPath == "" {
			return fmt.Errorf("telemetryd.db_path is required when database.url is unset")
		}
	}

	if c.Cache.Enabled {
		if c.Cache.Addr == "" {
			return fmt.Errorf("cache.addr is required when the cache is enabled")
		}
		if c.Cache.TTL < 0 {
			return fmt.Errorf("cache.ttl must not be negative, got %s", c.Cache.TTL)
		}
	}

	switch c.Archive.Backend {
	case "":
		// Archival disabled.
	case "fs":
		if c.Archive.Dir == "" {
			return fmt.Errorf("archive.dir is required for the fs backend")
		}
	case "s3", "gcs":
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket is required for the %s backend", c.Archive.Backend)
		}
	default:
		return fmt.Errorf("archive.backend must be fs, s3, or gcs, got: %s", c.Archive.Backend)
	}

	if c.Observability.Enabled {
		if c.Observability.Endpoint == "" {
			return fmt.Errorf("observability.endpoint is required when observability is enabled")
		}
		if c.Observability.SampleRatio <= 0.0 || c.Observability.SampleRatio > 1.0 {
			return fmt.Errorf("observability.sample_ratio must be > 0.0 and <= 1.0, got %f", c.Observability.SampleRatio)
		}
	}

	return nil
}
