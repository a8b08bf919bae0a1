package history

import (
	"fmt"
	"path/filepath"

	"molt/internal/config"
	"molt/internal/molt"
)

// NewStoreFromConfig creates a HistoryStore implementation based on the
// database config type.
func NewStoreFromConfig(cfg config.DatabaseConfig) (molt.HistoryStore, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		return NewSQLiteStore(filepath.Join(cfg.DataDir, "history.db"))
	case "memory":
		return NewSQLiteStore(":memory:")
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
