package app

import (
	"strings"

	"outagebot/internal/config"
	"outagebot/internal/storage"
)

// mapStorageConfig expects a config that already passed config.Resolve.
func mapStorageConfig(cfg *config.Config, set config.Settings) storage.Config {
	driver := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	switch driver {
	case "", "sqlite3":
		driver = "sqlite"
	case "postgresql", "pg":
		driver = "postgres"
	}
	return storage.Config{
		Driver:      driver,
		Path:        strings.TrimSpace(cfg.Storage.Path),
		DSN:         cfg.Storage.DSN,
		BusyTimeout: set.StorageBusyTimeout,
	}
}
