package core

import (
	"context"
	"fmt"

	"scenegraph/internal/infra/persistence/memory"
	"scenegraph/internal/infra/persistence/postgres"
	"scenegraph/internal/infra/persistence/sqlite"
	"scenegraph/pkg/domain"
)

// StorageDriver names a scene archive backend.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // process local, lost on exit
	StorageSQLite   StorageDriver = "sqlite"   // embedded database file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// OpenSceneArchive returns the archive selected by cfg.ArchiveDriver,
// defaulting to sqlite.
func OpenSceneArchive(ctx context.Context, cfg Config) (domain.SceneArchive, error) {
	switch cfg.ArchiveDriver {
	case StorageMemory:
		return memory.NewArchive(), nil
	case "", StorageSQLite:
		return sqlite.NewArchive(cfg.SQLitePath)
	case StoragePostgres:
		return postgres.NewArchive(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown archive driver %q", cfg.ArchiveDriver)
	}
}
