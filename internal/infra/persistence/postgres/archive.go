// Package postgres archives serialized scenes in a PostgreSQL table.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"scenegraph/pkg/domain"
)

var _ domain.SceneArchive = (*Archive)(nil)

const (
	defaultDriver = "pgx"
	// DefaultDSN is used when NewArchive receives an empty DSN.
	DefaultDSN = "postgres://localhost/scenegraph?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// OverrideSQLOpen swaps the function used to open connections and returns a
// restore func. Tests use it to point the archive at a stub driver.
func OverrideSQLOpen(fn func(driverName, dsn string) (*sql.DB, error)) func() {
	openMu.Lock()
	prev := sqlOpen
	sqlOpen = fn
	openMu.Unlock()
	return func() {
		openMu.Lock()
		sqlOpen = prev
		openMu.Unlock()
	}
}

// Archive is a domain.SceneArchive backed by PostgreSQL.
type Archive struct {
	db *sql.DB
}

// NewArchive connects to dsn and ensures the scenes table exists.
func NewArchive(ctx context.Context, dsn string) (*Archive, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	ddl := `CREATE TABLE IF NOT EXISTS scenes (
		name TEXT PRIMARY KEY,
		revision TEXT NOT NULL,
		node_count INTEGER NOT NULL,
		saved_at TIMESTAMPTZ NOT NULL,
		payload BYTEA NOT NULL
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure scenes table: %w", err)
	}
	return &Archive{db: db}, nil
}

// DB exposes the underlying pool for integration tests.
func (a *Archive) DB() *sql.DB { return a.db }

// Save upserts rec inside a transaction.
func (a *Archive) Save(ctx context.Context, rec domain.SceneRecord) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO scenes (name, revision, node_count, saved_at, payload)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name) DO UPDATE SET revision = EXCLUDED.revision, node_count = EXCLUDED.node_count,
			saved_at = EXCLUDED.saved_at, payload = EXCLUDED.payload`,
		rec.Name, rec.Revision, rec.NodeCount, rec.SavedAt.UTC(), rec.Payload)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("save scene %s: %w", rec.Name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit scene %s: %w", rec.Name, err)
	}
	return nil
}

func (a *Archive) Load(ctx context.Context, name string) (domain.SceneRecord, error) {
	var rec domain.SceneRecord
	err := a.db.QueryRowContext(ctx, `SELECT name, revision, node_count, saved_at, payload FROM scenes WHERE name = $1`, name).
		Scan(&rec.Name, &rec.Revision, &rec.NodeCount, &rec.SavedAt, &rec.Payload)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SceneRecord{}, domain.ErrSceneNotArchived{Name: name}
	}
	if err != nil {
		return domain.SceneRecord{}, fmt.Errorf("load scene %s: %w", name, err)
	}
	return rec, nil
}

func (a *Archive) List(ctx context.Context) ([]domain.SceneRecord, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT name, revision, node_count, saved_at FROM scenes ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list scenes: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.SceneRecord
	for rows.Next() {
		var rec domain.SceneRecord
		if err := rows.Scan(&rec.Name, &rec.Revision, &rec.NodeCount, &rec.SavedAt); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (a *Archive) Delete(ctx context.Context, name string) (bool, error) {
	res, err := a.db.ExecContext(ctx, `DELETE FROM scenes WHERE name = $1`, name)
	if err != nil {
		return false, fmt.Errorf("delete scene %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (a *Archive) Close() error { return a.db.Close() }
