package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"scenegraph/internal/infra/persistence/postgres/testutil"
	"scenegraph/pkg/domain"
)

func newStubArchive(t *testing.T) (*Archive, *testutil.StubConn) {
	t.Helper()
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(testutil.Opener(db))
	t.Cleanup(restore)
	a, err := NewArchive(context.Background(), "")
	if err != nil {
		t.Fatalf("NewArchive: %v", err)
	}
	return a, conn
}

func TestNewArchiveCreatesTable(t *testing.T) {
	_, conn := newStubArchive(t)
	if len(conn.Execs) == 0 || !strings.Contains(conn.Execs[0], "CREATE TABLE IF NOT EXISTS scenes") {
		t.Fatalf("expected scenes DDL, got %v", conn.Execs)
	}
}

func TestArchiveRoundTrip(t *testing.T) {
	ctx := context.Background()
	a, conn := newStubArchive(t)
	saved := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)
	for _, rec := range []domain.SceneRecord{
		{Name: "zeta", Revision: "r1", NodeCount: 1, SavedAt: saved, Payload: []byte("z")},
		{Name: "alpha", Revision: "r1", NodeCount: 2, SavedAt: saved, Payload: []byte("a1")},
		{Name: "alpha", Revision: "r2", NodeCount: 3, SavedAt: saved, Payload: []byte("a2")},
	} {
		if err := a.Save(ctx, rec); err != nil {
			t.Fatalf("save %s: %v", rec.Name, err)
		}
	}
	if got := len(conn.Tables["scenes"]); got != 2 {
		t.Fatalf("expected upsert to keep two rows, got %d", got)
	}
	rec, err := a.Load(ctx, "alpha")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if rec.Revision != "r2" || string(rec.Payload) != "a2" || rec.NodeCount != 3 {
		t.Fatalf("unexpected record %+v", rec)
	}
	list, err := a.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Name != "alpha" || list[1].Name != "zeta" {
		t.Fatalf("expected name ordering, got %+v", list)
	}
	if ok, err := a.Delete(ctx, "zeta"); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	var notArchived domain.ErrSceneNotArchived
	if _, err := a.Load(ctx, "zeta"); !errors.As(err, &notArchived) {
		t.Fatalf("expected ErrSceneNotArchived, got %v", err)
	}
}

func TestArchiveSurfacesDriverFailures(t *testing.T) {
	ctx := context.Background()
	a, conn := newStubArchive(t)
	conn.FailCommit = true
	if err := a.Save(ctx, domain.SceneRecord{Name: "n", SavedAt: time.Now()}); err == nil {
		t.Fatal("expected commit failure")
	}
	conn.FailCommit = false
	conn.FailBegin = true
	if err := a.Save(ctx, domain.SceneRecord{Name: "n", SavedAt: time.Now()}); err == nil {
		t.Fatal("expected begin failure")
	}
}

func TestNewArchivePingFailure(t *testing.T) {
	db, conn := testutil.NewStubDB()
	conn.FailPing = true
	t.Cleanup(OverrideSQLOpen(testutil.Opener(db)))
	if _, err := NewArchive(context.Background(), "postgres://x"); err == nil {
		t.Fatal("expected ping failure")
	}
}

func TestNewArchiveOpenFailure(t *testing.T) {
	t.Cleanup(OverrideSQLOpen(func(string, string) (*sql.DB, error) { return nil, errors.New("boom") }))
	if _, err := NewArchive(context.Background(), ""); err == nil {
		t.Fatal("expected open failure")
	}
}
