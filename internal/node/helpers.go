package node

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Klingon-tech/klingnet-launchpad/config"
	klog "github.com/Klingon-tech/klingnet-launchpad/internal/log"
	"github.com/Klingon-tech/klingnet-launchpad/internal/storage"
)

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// loadGenesis returns the genesis file named by the config, or the
// built-in genesis of the configured network.
func loadGenesis(cfg *config.Config) (*config.Genesis, error) {
	if cfg.Genesis == "" {
		return config.GenesisFor(cfg.Network), nil
	}
	g, err := config.LoadGenesis(expandHome(cfg.Genesis))
	if err != nil {
		return nil, fmt.Errorf("load genesis %s: %w", cfg.Genesis, err)
	}
	return g, nil
}

// openStorage opens the backend selected by cfg.Storage.Engine.
func openStorage(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Engine {
	case config.StorageMemory:
		klog.Storage.Warn().Msg("Using in-memory storage; state is lost on shutdown")
		return storage.NewMemory(), nil
	case config.StorageBadger, "":
		dir := expandHome(cfg.LedgerDir())
		var opts []storage.BadgerOption
		if cfg.Storage.Sync {
			opts = append(opts, storage.WithSyncWrites())
		}
		db, err := storage.NewBadger(dir, opts...)
		if err != nil {
			return nil, err
		}
		klog.Storage.Info().Str("path", dir).Bool("sync", cfg.Storage.Sync).Msg("Database opened")
		return db, nil
	default:
		return nil, fmt.Errorf("unknown storage engine %q", cfg.Storage.Engine)
	}
}
