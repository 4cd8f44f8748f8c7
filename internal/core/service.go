package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"scenegraph/internal/blob"
	"scenegraph/internal/codec"
	"scenegraph/pkg/domain"
)

// BundleContentType is the MIME type of exported scene bundles.
const BundleContentType = "application/xml"

// ErrNotConfigured is returned by operations whose backing store was not
// supplied to the service.
var ErrNotConfigured = errors.New("service dependency not configured")

// Service serialises access to one Scene for shared callers and wraps every
// operation with logging, audit, metrics and tracing.
type Service struct {
	serviceOptions

	sem   chan struct{}
	scene *Scene
}

// NewService wraps scene. A nil scene gets a fresh one.
func NewService(scene *Scene, opts ...ServiceOption) *Service {
	if scene == nil {
		scene = NewScene()
	}
	s := &Service{serviceOptions: defaultServiceOptions(), scene: scene, sem: make(chan struct{}, 1)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NodeView is a read-only description of a node.
type NodeView struct {
	ID           string              `json:"id"`
	Class        string              `json:"class"`
	Name         string              `json:"name"`
	Description  string              `json:"description,omitempty"`
	SingletonTag string              `json:"singleton_tag,omitempty"`
	Selected     bool                `json:"selected"`
	ModifiedTime uint64              `json:"modified_time"`
	Attributes   map[string]string   `json:"attributes,omitempty"`
	References   map[string][]string `json:"references,omitempty"`
	ParentID     string              `json:"parent_id,omitempty"`
	SortingValue float64             `json:"sorting_value,omitempty"`
	Properties   map[string]string   `json:"properties,omitempty"`
}

// Describe builds a NodeView from n.
func Describe(n domain.Node) NodeView {
	b := n.Base()
	v := NodeView{
		ID:           n.ID(),
		Class:        n.ClassTag(),
		Name:         n.Name(),
		Description:  b.Description(),
		SingletonTag: b.SingletonTag(),
		Selected:     b.Selected(),
		ModifiedTime: b.ModifiedTime(),
		References:   b.References(),
	}
	if names := b.AttributeNames(); len(names) > 0 {
		v.Attributes = make(map[string]string, len(names))
		for _, k := range names {
			v.Attributes[k] = b.Attribute(k)
		}
	}
	if h, ok := n.(domain.Hierarchical); ok {
		v.ParentID = h.ParentNodeID()
		v.SortingValue = h.SortingValue()
	}
	var w domain.AttributeWriter
	n.WriteAttributes(&w)
	if props := w.Map(); len(props) > 0 {
		v.Properties = props
	}
	return v
}

func describeAll(nodes []domain.Node) []NodeView {
	out := make([]NodeView, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, Describe(n))
	}
	return out
}

// run executes fn with exclusive access to the scene.
func (s *Service) run(ctx context.Context, op, nodeID string, fn func(*Scene) error) error {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.sem }()

	ctx, span := s.tracer.Start(ctx, op)
	started := time.Now()
	err := fn(s.scene)
	elapsed := time.Since(started)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, elapsed)
	if g, ok := s.metrics.(SceneGauge); ok {
		g.SetSceneSize(s.scene.NumberOfNodes(), s.scene.undo.UndoDepth(), s.scene.undo.RedoDepth())
	}
	entry := AuditEntry{Operation: op, NodeID: nodeID, Status: AuditStatusSuccess, Duration: elapsed, Timestamp: s.clock.Now()}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
		s.logger.Error("scene operation failed", "operation", op, "node_id", nodeID, "error", err)
	} else {
		s.logger.Debug("scene operation", "operation", op, "node_id", nodeID, "duration", elapsed)
	}
	s.audit.Record(ctx, entry)
	return err
}

// View runs fn with exclusive read access. fn must not retain the scene.
func (s *Service) View(ctx context.Context, fn func(*Scene) error) error {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.sem }()
	return fn(s.scene)
}

// CreateNode creates a node of class, names it when name is non-empty and
// adds it to the scene.
func (s *Service) CreateNode(ctx context.Context, class, name string) (NodeView, error) {
	var view NodeView
	err := s.run(ctx, "create_node", "", func(sc *Scene) error {
		n, err := sc.CreateNode(class)
		if err != nil {
			return err
		}
		if name != "" {
			n.Base().SetName(name)
		}
		added, err := sc.AddNode(n)
		if err != nil {
			return err
		}
		view = Describe(added)
		return nil
	})
	return view, err
}

// AddNode adds a detached node built by the caller.
func (s *Service) AddNode(ctx context.Context, n domain.Node) (NodeView, error) {
	var view NodeView
	var id string
	if n != nil {
		id = n.ID()
	}
	err := s.run(ctx, "add_node", id, func(sc *Scene) error {
		added, err := sc.AddNode(n)
		if err != nil {
			return err
		}
		view = Describe(added)
		return nil
	})
	return view, err
}

// RemoveNode removes the node with id.
func (s *Service) RemoveNode(ctx context.Context, id string) error {
	return s.run(ctx, "remove_node", id, func(sc *Scene) error {
		return sc.RemoveNodeByID(id)
	})
}

// Reparent moves a hierarchy node under parentID ("" for root).
func (s *Service) Reparent(ctx context.Context, id, parentID string) error {
	return s.run(ctx, "reparent", id, func(sc *Scene) error {
		return sc.Reparent(id, parentID)
	})
}

// MoveWithinParent shifts a hierarchy node among its siblings.
func (s *Service) MoveWithinParent(ctx context.Context, id string, delta int) error {
	return s.run(ctx, "move_within_parent", id, func(sc *Scene) error {
		h, ok := sc.NodeByID(id).(domain.Hierarchical)
		if !ok {
			if sc.NodeByID(id) == nil {
				return domain.NotFoundError{ID: id}
			}
			return domain.ErrNotHierarchical
		}
		return sc.hierarchy.MoveWithinParent(h, delta)
	})
}

// SaveStateForUndo records an undo checkpoint.
func (s *Service) SaveStateForUndo(ctx context.Context) error {
	return s.run(ctx, "save_state_for_undo", "", func(sc *Scene) error {
		return sc.SaveStateForUndo()
	})
}

// Undo reverts to the last checkpoint; false means the stack was empty.
func (s *Service) Undo(ctx context.Context) (bool, error) {
	var applied bool
	err := s.run(ctx, "undo", "", func(sc *Scene) error {
		var err error
		applied, err = sc.UndoLast()
		return err
	})
	return applied, err
}

// Redo re-applies the last undone checkpoint; false means nothing to redo.
func (s *Service) Redo(ctx context.Context) (bool, error) {
	var applied bool
	err := s.run(ctx, "redo", "", func(sc *Scene) error {
		var err error
		applied, err = sc.RedoLast()
		return err
	})
	return applied, err
}

// StoreSceneView creates a scene view named name and stores the current scene
// into it.
func (s *Service) StoreSceneView(ctx context.Context, name, description string) (NodeView, error) {
	var view NodeView
	err := s.run(ctx, "store_scene_view", "", func(sc *Scene) error {
		n, err := sc.CreateNode(domain.ClassSceneView)
		if err != nil {
			return err
		}
		sv := n.(*SceneView)
		sv.SetName(name)
		sv.SetDescription(description)
		if _, err := sc.AddNode(sv); err != nil {
			return err
		}
		if err := sc.StoreSceneView(sv); err != nil {
			return err
		}
		view = Describe(sv)
		return nil
	})
	return view, err
}

// RestoreSceneView restores the scene view id. Without force a restore that
// would delete nodes fails with a *domain.StaleRestoreConflictError.
func (s *Service) RestoreSceneView(ctx context.Context, id string, force bool) error {
	return s.run(ctx, "restore_scene_view", id, func(sc *Scene) error {
		sv, ok := sc.NodeByID(id).(*SceneView)
		if !ok {
			return domain.NotFoundError{ID: id}
		}
		return sc.RestoreSceneView(sv, force)
	})
}

// Import decodes a serialized scene from r and merges it into the scene.
func (s *Service) Import(ctx context.Context, r io.Reader) ([]NodeView, error) {
	var views []NodeView
	err := s.run(ctx, "import", "", func(sc *Scene) error {
		nodes, err := codec.Decode(r, sc)
		if err != nil {
			return err
		}
		added, err := sc.Import(nodes)
		if err != nil {
			return err
		}
		views = describeAll(added)
		return nil
	})
	return views, err
}

// Export encodes the whole scene to w.
func (s *Service) Export(ctx context.Context, w io.Writer) error {
	return s.run(ctx, "export", "", func(sc *Scene) error {
		return codec.Encode(w, sc.Nodes())
	})
}

// Clear empties the scene.
func (s *Service) Clear(ctx context.Context, removeSingletons bool) error {
	return s.run(ctx, "clear", "", func(sc *Scene) error {
		return sc.Clear(removeSingletons)
	})
}

// SaveArchive encodes the scene and stores it under name with a new revision.
func (s *Service) SaveArchive(ctx context.Context, name string) (domain.SceneRecord, error) {
	var rec domain.SceneRecord
	err := s.run(ctx, "save_archive", "", func(sc *Scene) error {
		if s.archive == nil {
			return fmt.Errorf("save archive: %w", ErrNotConfigured)
		}
		var buf bytes.Buffer
		if err := codec.Encode(&buf, sc.Nodes()); err != nil {
			return err
		}
		rec = domain.SceneRecord{
			Name:      name,
			Revision:  uuid.NewString(),
			NodeCount: sc.NumberOfNodes(),
			SavedAt:   s.clock.Now(),
			Payload:   buf.Bytes(),
		}
		if err := s.archive.Save(ctx, rec); err != nil {
			return fmt.Errorf("persist scene %s: %w", name, err)
		}
		return nil
	})
	return rec, err
}

// LoadArchive replaces the scene with the archived scene name.
func (s *Service) LoadArchive(ctx context.Context, name string) (domain.SceneRecord, error) {
	var rec domain.SceneRecord
	err := s.run(ctx, "load_archive", "", func(sc *Scene) error {
		if s.archive == nil {
			return fmt.Errorf("load archive: %w", ErrNotConfigured)
		}
		var err error
		if rec, err = s.archive.Load(ctx, name); err != nil {
			return err
		}
		nodes, err := codec.Decode(bytes.NewReader(rec.Payload), sc)
		if err != nil {
			return fmt.Errorf("decode archived scene %s: %w", name, err)
		}
		if err := sc.Clear(true); err != nil {
			return err
		}
		_, err = sc.Import(nodes)
		return err
	})
	return rec, err
}

// ListArchives lists archived scenes without payloads.
func (s *Service) ListArchives(ctx context.Context) ([]domain.SceneRecord, error) {
	var recs []domain.SceneRecord
	err := s.run(ctx, "list_archives", "", func(*Scene) error {
		if s.archive == nil {
			return fmt.Errorf("list archives: %w", ErrNotConfigured)
		}
		var err error
		recs, err = s.archive.List(ctx)
		return err
	})
	return recs, err
}

// ExportBundle writes the encoded scene to the blob store under key. Existing
// keys are never overwritten. An empty key gets a generated one under
// scenes/.
func (s *Service) ExportBundle(ctx context.Context, key string) (blob.Info, error) {
	if key == "" {
		key = "scenes/" + uuid.NewString() + ".xml"
	}
	var info blob.Info
	err := s.run(ctx, "export_bundle", "", func(sc *Scene) error {
		if s.blobs == nil {
			return fmt.Errorf("export bundle: %w", ErrNotConfigured)
		}
		var buf bytes.Buffer
		if err := codec.Encode(&buf, sc.Nodes()); err != nil {
			return err
		}
		var err error
		info, err = s.blobs.Put(ctx, key, &buf, blob.PutOptions{
			ContentType: BundleContentType,
			Metadata:    map[string]string{"scene-uid": sc.UID(), "format-version": codec.FormatVersion},
		})
		return err
	})
	return info, err
}

// ImportBundle reads the bundle at key and imports it into the scene.
func (s *Service) ImportBundle(ctx context.Context, key string) ([]NodeView, error) {
	var views []NodeView
	err := s.run(ctx, "import_bundle", "", func(sc *Scene) error {
		if s.blobs == nil {
			return fmt.Errorf("import bundle: %w", ErrNotConfigured)
		}
		_, body, err := s.blobs.Get(ctx, key)
		if err != nil {
			return err
		}
		defer func() { _ = body.Close() }()
		nodes, err := codec.Decode(body, sc)
		if err != nil {
			return err
		}
		added, err := sc.Import(nodes)
		if err != nil {
			return err
		}
		views = describeAll(added)
		return nil
	})
	return views, err
}
