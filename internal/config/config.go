// Package config provides YAML configuration for the swap bot daemon.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// NetworkType represents the Bitcoin network (mainnet or testnet).
type NetworkType string

const (
	NetworkMainnet NetworkType = "mainnet"
	NetworkTestnet NetworkType = "testnet"
)

// Config holds all configuration for the swap bot.
type Config struct {
	// NetworkType is the network type (mainnet or testnet).
	NetworkType NetworkType `yaml:"network_type"`

	// Mempool holds mempool.space API settings.
	Mempool MempoolConfig `yaml:"mempool"`

	// Price holds price oracle settings.
	Price PriceConfig `yaml:"price"`

	// Notify holds notification sink settings.
	Notify NotifyConfig `yaml:"notify"`

	// Storage
	Storage StorageConfig `yaml:"storage"`

	// Watcher holds feed listener and lifecycle tuning.
	Watcher WatcherConfig `yaml:"watcher"`

	// Health holds the health endpoint settings.
	Health HealthConfig `yaml:"health"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// MempoolConfig holds mempool.space REST and WebSocket settings.
type MempoolConfig struct {
	// APIURL is the base REST URL, e.g. https://mempool.space/api.
	APIURL string `yaml:"api_url"`

	// WSURL is the WebSocket endpoint, e.g. wss://mempool.space/api/v1/ws.
	WSURL string `yaml:"ws_url"`

	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration `yaml:"timeout"`
}

// PriceConfig holds CoinGecko price oracle settings.
type PriceConfig struct {
	// APIURL is the CoinGecko base URL.
	APIURL string `yaml:"api_url"`

	// APIKey is an optional CoinGecko API key.
	APIKey string `yaml:"api_key,omitempty"`

	// CacheTTL is how long a fetched quote stays fresh.
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// NotifyConfig holds notification sink settings.
type NotifyConfig struct {
	// Console enables logging notifications to stdout.
	Console bool `yaml:"console"`

	// WebhookURLs are endpoints that receive JSON swap events.
	WebhookURLs []string `yaml:"webhook_urls,omitempty"`

	// Twitter holds optional Twitter/X posting settings.
	Twitter TwitterConfig `yaml:"twitter"`
}

// TwitterConfig holds Twitter API v2 settings.
type TwitterConfig struct {
	// Enabled turns on tweet posting.
	Enabled bool `yaml:"enabled"`

	// BearerToken is the OAuth2 bearer token for the posting account.
	BearerToken string `yaml:"bearer_token,omitempty"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	// DataDir is the directory for the database and config files.
	DataDir string `yaml:"data_dir"`
}

// WatcherConfig holds feed listener and lifecycle tuning.
type WatcherConfig struct {
	// MaxRetries is the number of consecutive WebSocket reconnect
	// attempts before the watcher gives up.
	MaxRetries int `yaml:"max_retries"`

	// BackfillDelay is the pause between transactions during backfill.
	BackfillDelay time.Duration `yaml:"backfill_delay"`

	// EnrichInterval is how often pending swaps are priced and announced.
	EnrichInterval time.Duration `yaml:"enrich_interval"`

	// SweepInterval is how often timelocks are checked for expiry.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// HealthConfig holds the HTTP health endpoint settings.
type HealthConfig struct {
	// Enabled turns on the health HTTP server.
	Enabled bool `yaml:"enabled"`

	// ListenAddr is the address the health server binds to.
	ListenAddr string `yaml:"listen_addr"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `yaml:"level"`

	// File is the log file path (empty for stderr).
	File string `yaml:"file"`
}

// IsTestnet returns true if running on testnet.
func (c *Config) IsTestnet() bool {
	return c.NetworkType == NetworkTestnet
}

// DatabasePath returns the SQLite database path under the data directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(expandPath(c.Storage.DataDir), "swaps.db")
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		NetworkType: NetworkMainnet,
		Mempool: MempoolConfig{
			APIURL:  "https://mempool.space/api",
			WSURL:   "wss://mempool.space/api/v1/ws",
			Timeout: 30 * time.Second,
		},
		Price: PriceConfig{
			APIURL:   "https://api.coingecko.com/api/v3",
			CacheTTL: time.Minute,
		},
		Notify: NotifyConfig{
			Console: true,
		},
		Storage: StorageConfig{
			DataDir: "~/.swapbot",
		},
		Watcher: WatcherConfig{
			MaxRetries:     5,
			BackfillDelay:  100 * time.Millisecond,
			EnrichInterval: 30 * time.Second,
			SweepInterval:  time.Minute,
		},
		Health: HealthConfig{
			Enabled:    true,
			ListenAddr: ":8080",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// ConfigFileName is the default config file name.
const ConfigFileName = "config.yaml"

// LoadConfig loads configuration from a YAML file.
// If the file doesn't exist, it creates one with default values.
func LoadConfig(dataDir string) (*Config, error) {
	expandedDir := expandPath(dataDir)
	configPath := filepath.Join(expandedDir, ConfigFileName)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.Storage.DataDir = dataDir

		if err := cfg.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}

		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Mempool.APIURL == "" {
		return fmt.Errorf("mempool.api_url must not be empty")
	}
	if c.Mempool.WSURL == "" {
		return fmt.Errorf("mempool.ws_url must not be empty")
	}
	if c.Watcher.MaxRetries < 1 {
		return fmt.Errorf("watcher.max_retries must be at least 1")
	}
	if c.Notify.Twitter.Enabled && c.Notify.Twitter.BearerToken == "" {
		return fmt.Errorf("notify.twitter.bearer_token required when twitter is enabled")
	}
	return nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Add header comment
	header := []byte("# Swap Bot Configuration\n# Generated automatically on first run\n\n")
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ConfigPath returns the full path to the config file for the given data directory.
func ConfigPath(dataDir string) string {
	return filepath.Join(expandPath(dataDir), ConfigFileName)
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
