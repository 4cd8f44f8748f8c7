package core

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"scenegraph/internal/blob"
	"scenegraph/internal/infra/persistence/memory"
	"scenegraph/pkg/domain"
)

type captureAuditRecorder struct {
	entries []AuditEntry
}

func (c *captureAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	c.entries = append(c.entries, entry)
}

func (c *captureAuditRecorder) has(op string, status AuditStatus, predicate func(AuditEntry) bool) bool {
	for _, entry := range c.entries {
		if entry.Operation == op && entry.Status == status {
			if predicate == nil || predicate(entry) {
				return true
			}
		}
	}
	return false
}

type metricsCall struct {
	op      string
	success bool
}

type captureMetricsRecorder struct {
	calls []metricsCall
	sizes [][3]int
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, success: success})
}

func (c *captureMetricsRecorder) SetSceneSize(nodes, undoDepth, redoDepth int) {
	c.sizes = append(c.sizes, [3]int{nodes, undoDepth, redoDepth})
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

type spanRecord struct {
	op  string
	err error
}

type captureTracer struct {
	started []string
	ended   []spanRecord
}

func (c *captureTracer) Start(ctx context.Context, op string) (context.Context, TraceSpan) {
	c.started = append(c.started, op)
	return ctx, &captureSpan{tracer: c, op: op}
}

type captureSpan struct {
	tracer *captureTracer
	op     string
}

func (s *captureSpan) End(err error) {
	s.tracer.ended = append(s.tracer.ended, spanRecord{op: s.op, err: err})
}

func TestServiceObservability(t *testing.T) {
	ctx := context.Background()
	audit := &captureAuditRecorder{}
	metrics := &captureMetricsRecorder{}
	tracer := &captureTracer{}
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	var logs bytes.Buffer

	svc := NewService(nil,
		WithAuditRecorder(audit),
		WithMetricsRecorder(metrics),
		WithTracer(tracer),
		WithClock(ClockFunc(func() time.Time { return fixed })),
		WithLogger(slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))),
	)

	view, err := svc.CreateNode(ctx, domain.ClassVolume, "CT")
	if err != nil {
		t.Fatalf("create node: %v", err)
	}
	if view.ID != "VolumeNode" || view.Name != "CT" || view.Class != domain.ClassVolume {
		t.Fatalf("unexpected view %+v", view)
	}
	if view.Properties["spacing"] != "1 1 1" {
		t.Fatalf("expected variant properties in view, got %v", view.Properties)
	}
	if !audit.has("create_node", AuditStatusSuccess, func(e AuditEntry) bool { return e.Timestamp.Equal(fixed) }) {
		t.Fatalf("expected audit entry for create_node")
	}
	if !metrics.has("create_node", true) {
		t.Fatalf("expected metrics for create_node")
	}
	if len(metrics.sizes) != 1 || metrics.sizes[0] != [3]int{1, 0, 0} {
		t.Fatalf("unexpected scene sizes %v", metrics.sizes)
	}

	if _, err := svc.CreateNode(ctx, "Bogus", ""); !errors.Is(err, domain.ErrUnknownClass) {
		t.Fatalf("expected ErrUnknownClass, got %v", err)
	}
	if !audit.has("create_node", AuditStatusError, func(e AuditEntry) bool { return strings.Contains(e.Error, "Bogus") }) {
		t.Fatalf("expected error audit entry")
	}
	if !metrics.has("create_node", false) {
		t.Fatalf("expected failure metric")
	}
	if len(tracer.started) != 2 || len(tracer.ended) != 2 || tracer.ended[1].err == nil {
		t.Fatalf("unexpected spans %+v", tracer.ended)
	}
	if !strings.Contains(logs.String(), "scene operation failed") {
		t.Fatalf("expected failure log, got %q", logs.String())
	}

	if err := svc.RemoveNode(ctx, "missing"); !errors.Is(err, domain.ErrNodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if !audit.has("remove_node", AuditStatusError, func(e AuditEntry) bool { return e.NodeID == "missing" }) {
		t.Fatalf("expected audit entry to carry the node id")
	}
}

func TestServiceObservesArchiveListingAndNilNodes(t *testing.T) {
	ctx := context.Background()
	audit := &captureAuditRecorder{}
	metrics := &captureMetricsRecorder{}
	tracer := &captureTracer{}
	svc := NewService(nil, WithAuditRecorder(audit), WithMetricsRecorder(metrics), WithTracer(tracer))

	if _, err := svc.AddNode(ctx, nil); err == nil {
		t.Fatalf("expected error adding a nil node")
	}
	if !audit.has("add_node", AuditStatusError, func(e AuditEntry) bool { return e.NodeID == "" }) {
		t.Fatalf("expected error audit entry for add_node")
	}

	if _, err := svc.ListArchives(ctx); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if !audit.has("list_archives", AuditStatusError, nil) || !metrics.has("list_archives", false) {
		t.Fatalf("unconfigured listing must be audited and metered")
	}

	svc = NewService(nil, WithArchive(memory.NewArchive()), WithAuditRecorder(audit), WithMetricsRecorder(metrics), WithTracer(tracer))
	if _, err := svc.ListArchives(ctx); err != nil {
		t.Fatalf("list: %v", err)
	}
	if !audit.has("list_archives", AuditStatusSuccess, nil) || !metrics.has("list_archives", true) {
		t.Fatalf("listing must be audited and metered")
	}
	if len(tracer.started) != 3 {
		t.Fatalf("expected a span per operation, got %d", len(tracer.started))
	}
}

func TestServiceDefaultsAreNoops(t *testing.T) {
	svc := NewService(nil, WithLogger(nil), WithAuditRecorder(nil), WithMetricsRecorder(nil), WithTracer(nil), WithClock(nil))
	if _, err := svc.CreateNode(context.Background(), domain.ClassCamera, ""); err != nil {
		t.Fatalf("create with defaults: %v", err)
	}
	logger := noopLogger{}
	logger.Debug("debug")
	logger.Info("info")
	logger.Warn("warn")
	logger.Error("error")
	if svc.clock.Now().IsZero() {
		t.Fatalf("default clock must be set")
	}
}

func TestServiceHonoursContextWhileBusy(t *testing.T) {
	svc := NewService(nil)
	release := make(chan struct{})
	entered := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- svc.View(context.Background(), func(*Scene) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.CreateNode(ctx, domain.ClassVolume, ""); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := svc.View(ctx, func(*Scene) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled from View, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestServiceHierarchyAndUndo(t *testing.T) {
	ctx := context.Background()
	svc := NewService(nil)

	parent, err := svc.CreateNode(ctx, domain.ClassHierarchy, "parent")
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}
	child, err := svc.CreateNode(ctx, domain.ClassHierarchy, "child")
	if err != nil {
		t.Fatalf("create child: %v", err)
	}
	if err := svc.SaveStateForUndo(ctx); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := svc.Reparent(ctx, child.ID, parent.ID); err != nil {
		t.Fatalf("reparent: %v", err)
	}
	if err := svc.MoveWithinParent(ctx, child.ID, 1); !errors.Is(err, domain.ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
	}
	if err := svc.MoveWithinParent(ctx, "missing", 1); !errors.Is(err, domain.ErrNodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	applied, err := svc.Undo(ctx)
	if err != nil || !applied {
		t.Fatalf("undo: %v %v", applied, err)
	}
	_ = svc.View(ctx, func(sc *Scene) error {
		if got := len(sc.ChildrenOf(parent.ID)); got != 0 {
			t.Fatalf("undo should detach the child, got %d children", got)
		}
		return nil
	})
	applied, err = svc.Redo(ctx)
	if err != nil || !applied {
		t.Fatalf("redo: %v %v", applied, err)
	}
	if applied, _ := svc.Redo(ctx); applied {
		t.Fatalf("redo stack should be empty")
	}
}

func TestServiceSceneViews(t *testing.T) {
	ctx := context.Background()
	svc := NewService(nil)
	if _, err := svc.CreateNode(ctx, domain.ClassVolume, ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	sv, err := svc.StoreSceneView(ctx, "baseline", "first pass")
	if err != nil {
		t.Fatalf("store view: %v", err)
	}
	if sv.Class != domain.ClassSceneView || sv.Description != "first pass" {
		t.Fatalf("unexpected scene view %+v", sv)
	}
	late, err := svc.CreateNode(ctx, domain.ClassCamera, "")
	if err != nil {
		t.Fatalf("create camera: %v", err)
	}

	err = svc.RestoreSceneView(ctx, sv.ID, false)
	var conflict *domain.StaleRestoreConflictError
	if !errors.As(err, &conflict) || conflict.NodeIDs[0] != late.ID {
		t.Fatalf("expected conflict on %s, got %v", late.ID, err)
	}
	if err := svc.RestoreSceneView(ctx, sv.ID, true); err != nil {
		t.Fatalf("forced restore: %v", err)
	}
	if err := svc.RestoreSceneView(ctx, "missing", true); !errors.Is(err, domain.ErrNodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestServiceExportImport(t *testing.T) {
	ctx := context.Background()
	src := NewService(nil)
	vol, err := src.CreateNode(ctx, domain.ClassVolume, "CT")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	var buf bytes.Buffer
	if err := src.Export(ctx, &buf); err != nil {
		t.Fatalf("export: %v", err)
	}

	dst := NewService(nil)
	views, err := dst.Import(ctx, bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(views) != 1 || views[0].ID != vol.ID || views[0].Name != "CT" {
		t.Fatalf("unexpected import %+v", views)
	}
	if _, err := dst.Import(ctx, strings.NewReader("<Nope/>")); err == nil {
		t.Fatalf("expected decode error")
	}
	if err := dst.Clear(ctx, true); err != nil {
		t.Fatalf("clear: %v", err)
	}
	_ = dst.View(ctx, func(sc *Scene) error {
		if sc.NumberOfNodes() != 0 {
			t.Fatalf("expected empty scene after clear")
		}
		return nil
	})
}

func TestServiceArchives(t *testing.T) {
	ctx := context.Background()
	bare := NewService(nil)
	if _, err := bare.SaveArchive(ctx, "x"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if _, err := bare.LoadArchive(ctx, "x"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if _, err := bare.ListArchives(ctx); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}

	archive := memory.NewArchive()
	fixed := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	svc := NewService(nil, WithArchive(archive), WithClock(ClockFunc(func() time.Time { return fixed })))
	if _, err := svc.CreateNode(ctx, domain.ClassVolume, "CT"); err != nil {
		t.Fatalf("create: %v", err)
	}
	rec, err := svc.SaveArchive(ctx, "study")
	if err != nil {
		t.Fatalf("save archive: %v", err)
	}
	if rec.NodeCount != 1 || rec.Revision == "" || !rec.SavedAt.Equal(fixed) {
		t.Fatalf("unexpected record %+v", rec)
	}

	if _, err := svc.CreateNode(ctx, domain.ClassCamera, ""); err != nil {
		t.Fatalf("create camera: %v", err)
	}
	if _, err := svc.LoadArchive(ctx, "study"); err != nil {
		t.Fatalf("load archive: %v", err)
	}
	_ = svc.View(ctx, func(sc *Scene) error {
		if sc.NumberOfNodes() != 1 || sc.FirstNodeByName("CT") == nil {
			t.Fatalf("load must replace the scene, got %d nodes", sc.NumberOfNodes())
		}
		return nil
	})

	list, err := svc.ListArchives(ctx)
	if err != nil || len(list) != 1 || list[0].Payload != nil {
		t.Fatalf("unexpected list %+v err=%v", list, err)
	}
	var missing domain.ErrSceneNotArchived
	if _, err := svc.LoadArchive(ctx, "nope"); !errors.As(err, &missing) {
		t.Fatalf("expected ErrSceneNotArchived, got %v", err)
	}
}

func TestServiceBundles(t *testing.T) {
	ctx := context.Background()
	if _, err := NewService(nil).ExportBundle(ctx, "a.xml"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}

	store := blob.NewMemory()
	svc := NewService(nil, WithBlobStore(store))
	if _, err := svc.CreateNode(ctx, domain.ClassLinearTransform, "reg"); err != nil {
		t.Fatalf("create: %v", err)
	}
	info, err := svc.ExportBundle(ctx, "bundles/one.xml")
	if err != nil {
		t.Fatalf("export bundle: %v", err)
	}
	if info.ContentType != BundleContentType || info.Size == 0 || info.Metadata["format-version"] == "" {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := svc.ExportBundle(ctx, "bundles/one.xml"); !errors.Is(err, blob.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	generated, err := svc.ExportBundle(ctx, "")
	if err != nil || !strings.HasPrefix(generated.Key, "scenes/") || !strings.HasSuffix(generated.Key, ".xml") {
		t.Fatalf("expected generated key, got %q (%v)", generated.Key, err)
	}

	other := NewService(nil, WithBlobStore(store))
	views, err := other.ImportBundle(ctx, "bundles/one.xml")
	if err != nil {
		t.Fatalf("import bundle: %v", err)
	}
	if len(views) != 1 || views[0].Name != "reg" {
		t.Fatalf("unexpected bundle import %+v", views)
	}
	if _, err := other.ImportBundle(ctx, "bundles/missing.xml"); !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
