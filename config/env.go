package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// EnvPrefix is the prefix of environment variables that override config
// keys. LAUNCHPAD_RPC_PORT maps to rpc.port, LAUNCHPAD_SINK_DSN to sink.dsn.
const EnvPrefix = "LAUNCHPAD_"

// LoadDotEnv loads the given .env files into the process environment.
// Missing files are skipped and variables already set are not overridden.
func LoadDotEnv(paths ...string) error {
	var existing []string
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// EnvValues collects LAUNCHPAD_* variables as config key/value pairs.
func EnvValues(environ []string) map[string]string {
	values := make(map[string]string)
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, EnvPrefix) {
			continue
		}
		key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
		values[strings.ReplaceAll(key, "_", ".")] = value
	}
	return values
}

// ApplyEnv applies LAUNCHPAD_* variables from the process environment.
func ApplyEnv(cfg *Config) error {
	for key, value := range EnvValues(os.Environ()) {
		if err := setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("env %s%s: %w", EnvPrefix, strings.ToUpper(strings.ReplaceAll(key, ".", "_")), err)
		}
	}
	return nil
}
