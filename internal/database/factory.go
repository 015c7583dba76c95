package database

import (
	"fmt"
	"os"
	"path/filepath"

	"bumd-go/internal/bumd"
	"bumd-go/internal/config"
)

// NewDatabaseFromConfig creates a MetadataStore implementation based on the database config type.
// The schema is migrated on open, so a new storage root needs no separate
// initialization.
func NewDatabaseFromConfig(cfg config.DatabaseConfig) (bumd.MetadataStore, error) {
	switch cfg.Type {
	case "", "sqlite":
		if cfg.Path == "" {
			return nil, fmt.Errorf("path required for sqlite database")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		return openSQLite(cfg.Path)
	case "memory":
		return openSQLite(":memory:")
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}

// openSQLite keeps a failed open from returning a non-nil interface.
func openSQLite(path string) (bumd.MetadataStore, error) {
	db, err := NewSQLiteDatabase(path)
	if err != nil {
		return nil, err
	}
	return db, nil
}
