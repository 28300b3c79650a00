package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"cdpvault/observability/logging"
	telemetry "cdpvault/observability/otel"
)

// Config captures the runtime settings for the CDP daemon.
type Config struct {
	ListenAddress string           `yaml:"listen"`
	DataDir       string           `yaml:"data_dir"`
	Genesis       string           `yaml:"genesis"`
	Auth          AuthConfig       `yaml:"auth"`
	RateLimit     RateLimitConfig  `yaml:"rate_limit"`
	Keeper        KeeperConfig     `yaml:"keeper"`
	Indexer       IndexerConfig    `yaml:"indexer"`
	Logging       logging.Options  `yaml:"logging"`
	Telemetry     telemetry.Config `yaml:"telemetry"`
	Stream        StreamConfig     `yaml:"stream"`
	Shutdown      time.Duration    `yaml:"shutdown_timeout"`
}

// AuthConfig describes the HMAC-signed bearer tokens accepted for writes.
// The token subject is the caller address.
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	Issuer    string        `yaml:"issuer"`
	Audience  string        `yaml:"audience"`
	ClockSkew time.Duration `yaml:"clock_skew"`
}

// RateLimitConfig bounds requests per client.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// KeeperConfig enables the built-in maintenance loop.
type KeeperConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Address  string        `yaml:"address"`
}

// IndexerConfig selects the event history database.
type IndexerConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// StreamConfig tunes websocket subscribers.
type StreamConfig struct {
	Buffer int `yaml:"buffer"`
}

// Load reads the YAML configuration from disk and validates the result.
func Load(path string) (Config, error) {
	cfg := Config{}
	if path == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() {
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8080"
	}
	cfg.DataDir = strings.TrimSpace(cfg.DataDir)
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	cfg.Genesis = strings.TrimSpace(cfg.Genesis)
	if cfg.Shutdown <= 0 {
		cfg.Shutdown = 5 * time.Second
	}
	cfg.Auth.JWTSecret = strings.TrimSpace(cfg.Auth.JWTSecret)
	cfg.Auth.Issuer = strings.TrimSpace(cfg.Auth.Issuer)
	cfg.Auth.Audience = strings.TrimSpace(cfg.Auth.Audience)
	if cfg.Auth.ClockSkew <= 0 {
		cfg.Auth.ClockSkew = time.Minute
	}
	if cfg.RateLimit.RequestsPerSecond <= 0 {
		cfg.RateLimit.RequestsPerSecond = 20
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 40
	}
	if cfg.Keeper.Interval <= 0 {
		cfg.Keeper.Interval = 10 * time.Second
	}
	cfg.Keeper.Address = strings.TrimSpace(cfg.Keeper.Address)
	cfg.Indexer.Driver = strings.ToLower(strings.TrimSpace(cfg.Indexer.Driver))
	cfg.Indexer.DSN = strings.TrimSpace(cfg.Indexer.DSN)
	if cfg.Indexer.Driver == "" {
		cfg.Indexer.Driver = "sqlite"
	}
	if cfg.Indexer.Driver == "sqlite" && cfg.Indexer.DSN == "" {
		cfg.Indexer.DSN = "file::memory:?cache=shared"
	}
	if cfg.Stream.Buffer <= 0 {
		cfg.Stream.Buffer = 64
	}
	cfg.Telemetry.Endpoint = strings.TrimSpace(cfg.Telemetry.Endpoint)
}

func (cfg *Config) validate() error {
	if cfg.Genesis == "" {
		return fmt.Errorf("genesis path required")
	}
	if len(cfg.Auth.JWTSecret) < 16 {
		return fmt.Errorf("auth: jwt_secret must be at least 16 characters")
	}
	if cfg.Keeper.Enabled && !common.IsHexAddress(cfg.Keeper.Address) {
		return fmt.Errorf("keeper: address %q is not a hex address", cfg.Keeper.Address)
	}
	switch cfg.Indexer.Driver {
	case "sqlite":
	case "postgres":
		if cfg.Indexer.DSN == "" {
			return fmt.Errorf("indexer: postgres requires dsn")
		}
	default:
		return fmt.Errorf("indexer: unsupported driver %q", cfg.Indexer.Driver)
	}
	return nil
}

// KeeperAddress returns the configured keeper identity.
func (cfg Config) KeeperAddress() common.Address {
	return common.HexToAddress(cfg.Keeper.Address)
}
