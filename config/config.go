// Package config handles launchpad node configuration.
//
// Configuration is split into two categories:
//   - Protocol rules: defined in genesis, fixed for the lifetime of a ledger
//   - Node settings: runtime configuration, can vary per node
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// NetworkType identifies mainnet or testnet.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
)

// Storage engines.
const (
	StorageBadger = "badger"
	StorageMemory = "memory"
)

// Config holds node-specific runtime configuration.
type Config struct {
	// Core
	Network NetworkType `conf:"network,lower"`
	DataDir string      `conf:"datadir"`
	Genesis string      `conf:"genesis"` // Optional path to a genesis JSON file.

	Storage     StorageConfig
	RPC         RPCConfig
	Metrics     MetricsConfig
	Sink        SinkConfig
	Coprocessor CoprocessorConfig
	Log         LogConfig
}

// StorageConfig selects the ledger backend.
type StorageConfig struct {
	Engine string `conf:"storage.engine,lower"` // badger or memory
	Sync   bool   `conf:"storage.sync"`         // fsync every commit (badger only)
}

// RPCConfig holds RPC server settings.
type RPCConfig struct {
	Enabled     bool     `conf:"rpc.enabled"`
	Addr        string   `conf:"rpc.addr"`
	Port        int      `conf:"rpc.port"`
	AllowedIPs  []string `conf:"rpc.allowed"`
	CORSOrigins []string `conf:"rpc.cors"` // Allowed CORS origins ("*" = all).
}

// MetricsConfig controls the Prometheus endpoint served on the RPC listener.
type MetricsConfig struct {
	Enabled bool   `conf:"metrics.enabled"`
	Path    string `conf:"metrics.path"`
}

// SinkConfig configures the optional Postgres event mirror.
type SinkConfig struct {
	Enabled bool   `conf:"sink.enabled"`
	DSN     string `conf:"sink.dsn"`
	Buffer  int    `conf:"sink.buffer"` // Pending events held in memory.
}

// CoprocessorConfig configures the confidential arithmetic coprocessor.
type CoprocessorConfig struct {
	KeyFile string `conf:"fhe.keyfile"` // Network key; generated on first start.
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.launchpad
//	macOS:   ~/Library/Application Support/Launchpad
//	Windows: %APPDATA%\Launchpad
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".launchpad"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Launchpad")
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "Launchpad")
		}
		return filepath.Join(home, "AppData", "Roaming", "Launchpad")
	default:
		return filepath.Join(home, ".launchpad")
	}
}

// ChainDataDir returns the network-specific data directory.
func (c *Config) ChainDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// LedgerDir returns the ledger database directory.
func (c *Config) LedgerDir() string {
	return filepath.Join(c.ChainDataDir(), "ledger")
}

// KeystoreDir returns the keystore directory used by the CLI.
func (c *Config) KeystoreDir() string {
	return filepath.Join(c.ChainDataDir(), "keystore")
}

// CoprocessorKeyPath returns the coprocessor network key file path.
func (c *Config) CoprocessorKeyPath() string {
	if c.Coprocessor.KeyFile != "" {
		return c.Coprocessor.KeyFile
	}
	return filepath.Join(c.ChainDataDir(), "coprocessor.key")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "launchpad.conf")
}

// EnvFile returns the path of the data directory's .env file.
func (c *Config) EnvFile() string {
	return filepath.Join(c.DataDir, ".env")
}
