// Package sqlite archives serialized scenes in a single SQLite table.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"scenegraph/pkg/domain"
)

var _ domain.SceneArchive = (*Archive)(nil)

// DefaultPath is used when NewArchive receives an empty path.
const DefaultPath = "scenegraph.db"

const schema = `CREATE TABLE IF NOT EXISTS scenes (
	name TEXT PRIMARY KEY,
	revision TEXT NOT NULL,
	node_count INTEGER NOT NULL,
	saved_at TEXT NOT NULL,
	payload BLOB NOT NULL
)`

// Archive is a domain.SceneArchive backed by a SQLite file.
type Archive struct {
	db   *sql.DB
	path string
}

// NewArchive opens (creating when needed) the database at path.
func NewArchive(path string) (*Archive, error) {
	if path == "" {
		path = DefaultPath
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create scenes table: %w", err)
	}
	return &Archive{db: db, path: path}, nil
}

// Path returns the database file path.
func (a *Archive) Path() string { return a.path }

func (a *Archive) Save(ctx context.Context, rec domain.SceneRecord) error {
	_, err := a.db.ExecContext(ctx, `INSERT INTO scenes (name, revision, node_count, saved_at, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET revision=excluded.revision, node_count=excluded.node_count,
			saved_at=excluded.saved_at, payload=excluded.payload`,
		rec.Name, rec.Revision, rec.NodeCount, rec.SavedAt.UTC().Format(time.RFC3339Nano), rec.Payload)
	if err != nil {
		return fmt.Errorf("save scene %s: %w", rec.Name, err)
	}
	return nil
}

func (a *Archive) Load(ctx context.Context, name string) (domain.SceneRecord, error) {
	row := a.db.QueryRowContext(ctx, `SELECT name, revision, node_count, saved_at, payload FROM scenes WHERE name = ?`, name)
	var (
		rec     domain.SceneRecord
		savedAt string
	)
	if err := row.Scan(&rec.Name, &rec.Revision, &rec.NodeCount, &savedAt, &rec.Payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.SceneRecord{}, domain.ErrSceneNotArchived{Name: name}
		}
		return domain.SceneRecord{}, fmt.Errorf("load scene %s: %w", name, err)
	}
	ts, err := time.Parse(time.RFC3339Nano, savedAt)
	if err != nil {
		return domain.SceneRecord{}, fmt.Errorf("load scene %s: saved_at: %w", name, err)
	}
	rec.SavedAt = ts
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
		var (
			rec     domain.SceneRecord
			savedAt string
		)
		if err := rows.Scan(&rec.Name, &rec.Revision, &rec.NodeCount, &savedAt); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if rec.SavedAt, err = time.Parse(time.RFC3339Nano, savedAt); err != nil {
			return nil, fmt.Errorf("scene %s saved_at: %w", rec.Name, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (a *Archive) Delete(ctx context.Context, name string) (bool, error) {
	res, err := a.db.ExecContext(ctx, `DELETE FROM scenes WHERE name = ?`, name)
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
