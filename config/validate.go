package config

import (
	"fmt"
	"net"
	"strings"
)

// Validate checks runtime node config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Network != Mainnet && cfg.Network != Testnet {
		return fmt.Errorf("network must be %q or %q", Mainnet, Testnet)
	}
	if cfg.DataDir == "" && cfg.Storage.Engine != StorageMemory {
		return fmt.Errorf("datadir is required for %s storage", cfg.Storage.Engine)
	}
	switch cfg.Storage.Engine {
	case StorageBadger, StorageMemory:
	default:
		return fmt.Errorf("storage.engine must be %q or %q", StorageBadger, StorageMemory)
	}
	if cfg.RPC.Port < 0 || cfg.RPC.Port > 65535 {
		return fmt.Errorf("rpc.port must be in range [0, 65535]")
	}
	for i, entry := range cfg.RPC.AllowedIPs {
		entry = strings.TrimSpace(entry)
		if net.ParseIP(entry) != nil {
			continue
		}
		if _, _, err := net.ParseCIDR(entry); err != nil {
			return fmt.Errorf("rpc.allowed[%d] %q is neither an IP nor a CIDR", i, entry)
		}
	}
	if cfg.Metrics.Enabled {
		if cfg.Metrics.Path == "" {
			cfg.Metrics.Path = "/metrics"
		}
		if !strings.HasPrefix(cfg.Metrics.Path, "/") || cfg.Metrics.Path == "/" {
			return fmt.Errorf("metrics.path must be an absolute path other than /")
		}
	}
	if cfg.Sink.Enabled && cfg.Sink.DSN == "" {
		return fmt.Errorf("sink.enabled requires sink.dsn")
	}
	if cfg.Sink.Buffer < 0 {
		return fmt.Errorf("sink.buffer must not be negative")
	}
	return nil
}
