// Package daemon holds the service configuration: a TOML file in the
// starled home directory, overridable through STARLED_* environment
// variables for container deployments.
package daemon

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
)

// Config is the full service configuration.
type Config struct {
	API       APIConfig       `toml:"api"`
	Store     StoreConfig     `toml:"store"`
	Log       LogConfig       `toml:"log"`
	Directory DirectoryConfig `toml:"directory"`
}

// APIConfig controls the HTTP listener.
type APIConfig struct {
	Host           string `toml:"host" envconfig:"API_HOST"`
	Port           int    `toml:"port" envconfig:"API_PORT"`
	Metrics        bool   `toml:"metrics" envconfig:"API_METRICS"`
	RequestTimeout string `toml:"request_timeout" envconfig:"API_REQUEST_TIMEOUT"`
}

// StoreConfig selects and configures the ledger store backend.
type StoreConfig struct {
	// Driver is "sqlite" (embedded) or "postgres" (hosted).
	Driver      string `toml:"driver" envconfig:"STORE_DRIVER"`
	SQLiteDir   string `toml:"sqlite_dir" envconfig:"STORE_SQLITE_DIR"`
	PostgresDSN string `toml:"postgres_dsn" envconfig:"STORE_POSTGRES_DSN"`
	MaxConns    int32  `toml:"max_conns" envconfig:"STORE_MAX_CONNS"`
	MinConns    int32  `toml:"min_conns" envconfig:"STORE_MIN_CONNS"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Level  string `toml:"level" envconfig:"LOG_LEVEL"`
	Format string `toml:"format" envconfig:"LOG_FORMAT"` // "text" or "json"
}

// DirectoryConfig selects the employee directory source.
type DirectoryConfig struct {
	// Source is "sql" (employees table in the ledger database) or
	// "static" (fixed list below, for dev and demo setups).
	Source string           `toml:"source" envconfig:"DIRECTORY_SOURCE"`
	Static []StaticEmployee `toml:"employee"`
}

// StaticEmployee is one entry of the static directory.
type StaticEmployee struct {
	ID          string `toml:"id"`
	DisplayName string `toml:"display_name"`
	Department  string `toml:"department"`
}

// DefaultConfig returns safe defaults for an embedded single-node setup.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Host:           "127.0.0.1",
			Port:           8480,
			Metrics:        true,
			RequestTimeout: "15s",
		},
		Store: StoreConfig{
			Driver:    "sqlite",
			SQLiteDir: filepath.Join(homeDir(), ".starled", "data"),
			MaxConns:  25,
			MinConns:  5,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Directory: DirectoryConfig{
			Source: "sql",
		},
	}
}

// DefaultConfigPath is where Load looks when no --config flag is given.
func DefaultConfigPath() string {
	return filepath.Join(homeDir(), ".starled", "config.toml")
}

// Load builds the configuration: defaults, then the TOML file (if present),
// then STARLED_* environment overrides.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = DefaultConfigPath()
		if _, err := os.Stat(path); os.IsNotExist(err) {
			path = ""
		}
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := envconfig.Process("starled", &cfg); err != nil {
		return Config{}, fmt.Errorf("apply env overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot run with.
func (c Config) Validate() error {
	if c.API.Port < 1 || c.API.Port > 65535 {
		return fmt.Errorf("api.port %d out of range", c.API.Port)
	}
	if _, err := time.ParseDuration(c.API.RequestTimeout); err != nil {
		return fmt.Errorf("api.request_timeout %q: %w", c.API.RequestTimeout, err)
	}

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.SQLiteDir == "" {
			return fmt.Errorf("store.sqlite_dir required for the sqlite driver")
		}
	case "postgres":
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("store.postgres_dsn required for the postgres driver")
		}
	default:
		return fmt.Errorf("store.driver %q unknown (want sqlite or postgres)", c.Store.Driver)
	}

	switch c.Directory.Source {
	case "sql":
	case "static":
		if len(c.Directory.Static) == 0 {
			return fmt.Errorf("directory.source static needs at least one [[directory.employee]]")
		}
	default:
		return fmt.Errorf("directory.source %q unknown (want sql or static)", c.Directory.Source)
	}
	return nil
}

// Addr returns the host:port the API listens on.
func (c Config) Addr() string {
	return net.JoinHostPort(c.API.Host, strconv.Itoa(c.API.Port))
}

// RequestTimeout returns the parsed per-request timeout.
func (c Config) RequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.API.RequestTimeout)
	if err != nil {
		return 15 * time.Second
	}
	return d
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
