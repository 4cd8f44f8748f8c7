package core

import (
	"strconv"
	"time"

	"scenegraph/pkg/domain"
)

// SceneViewContent is the copyable state of a scene view besides its
// stored scene. The description lives on the node base.
type SceneViewContent struct {
	ScreenshotType int
	StoredAt       string
}

// SceneView is a named checkpoint of the scene. It owns an isolated child
// scene holding ID-preserving copies of the nodes captured by StoreSceneView.
type SceneView struct {
	domain.NodeBase
	SceneViewContent
	stored *Scene
}

func NewSceneView() *SceneView {
	return &SceneView{NodeBase: domain.NewNodeBase()}
}

func (v *SceneView) ClassTag() string { return domain.ClassSceneView }
func (v *SceneView) Content() any     { return &v.SceneViewContent }

// CopyContent also deep copies the stored scene of another scene view.
func (v *SceneView) CopyContent(src domain.Node) error {
	if err := domain.CopyNodeContent(v, src); err != nil {
		return err
	}
	other, ok := src.(*SceneView)
	if !ok || other == v {
		return nil
	}
	if other.stored == nil {
		v.stored = nil
		return nil
	}
	child := other.stored.newChildScene()
	for _, n := range other.stored.nodes {
		dup, err := other.stored.cloneNode(n)
		if err != nil {
			return err
		}
		if _, err := child.add(dup); err != nil {
			return err
		}
	}
	v.stored = child
	return nil
}

// StoredTime returns when the view was last stored, or the zero time.
func (v *SceneView) StoredTime() time.Time {
	t, err := time.Parse(time.RFC3339Nano, v.StoredAt)
	if err != nil {
		return time.Time{}
	}
	return t
}

// SetStoredTime overrides the recorded store time.
func (v *SceneView) SetStoredTime(t time.Time) {
	v.Modify(func() { v.StoredAt = t.UTC().Format(time.RFC3339Nano) })
}

// HasStoredScene reports whether StoreSceneView ran for this view.
func (v *SceneView) HasStoredScene() bool { return v.stored != nil }

// NumberOfStoredNodes is the size of the stored scene.
func (v *SceneView) NumberOfStoredNodes() int {
	if v.stored == nil {
		return 0
	}
	return v.stored.NumberOfNodes()
}

// StoredNodes returns the stored copies in capture order.
func (v *SceneView) StoredNodes() []domain.Node {
	if v.stored == nil {
		return nil
	}
	return v.stored.Nodes()
}

// StoredNode resolves a stored copy by ID.
func (v *SceneView) StoredNode(id string) domain.Node {
	if v.stored == nil {
		return nil
	}
	return v.stored.NodeByID(id)
}

// SetStoredNodes replaces the stored scene with detached nodes, typically
// decoded from a serialized scene view.
func (v *SceneView) SetStoredNodes(nodes []domain.Node) error {
	child := NewScene(WithUndoDisabled())
	if v.stored != nil {
		child = v.stored.newChildScene()
	}
	for _, n := range nodes {
		if _, err := child.add(n); err != nil {
			return err
		}
	}
	v.stored = child
	v.Modified()
	return nil
}

func (v *SceneView) WriteAttributes(w *domain.AttributeWriter) {
	w.Int("screenshotType", v.ScreenshotType)
	if v.StoredAt != "" {
		w.String("storedTime", v.StoredAt)
	}
}

func (v *SceneView) ReadAttributes(attrs map[string]string) error {
	if s, ok := attrs["screenshotType"]; ok && s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return err
		}
		v.ScreenshotType = n
	}
	if s, ok := attrs["storedTime"]; ok {
		v.StoredAt = s
	}
	return nil
}

// storable reports whether n is captured into scene views. Cameras are kept
// even when they are not saved with the scene.
func (s *Scene) storable(n domain.Node) bool {
	if n.ClassTag() == domain.ClassSceneView || s.associatedWithSceneView(n) {
		return false
	}
	return n.Base().SaveWithScene() || s.isA(n.ClassTag(), domain.ClassCamera)
}

func (s *Scene) associatedWithSceneView(n domain.Node) bool {
	h, ok := n.(domain.Hierarchical)
	if !ok {
		return false
	}
	assoc := s.NodeByID(h.AssociatedNodeID())
	return assoc != nil && assoc.ClassTag() == domain.ClassSceneView
}

// protectedFromRestore reports whether a restore keeps n even when the view
// does not contain it.
func (s *Scene) protectedFromRestore(n domain.Node) bool {
	return !s.storable(n)
}

// StoreSceneView captures ID-preserving copies of every storable node into
// an isolated child scene owned by v.
func (s *Scene) StoreSceneView(v *SceneView) error {
	child := s.newChildScene()
	for _, n := range s.nodes {
		if !s.storable(n) {
			continue
		}
		dup, err := s.cloneNode(n)
		if err != nil {
			return err
		}
		if _, err := child.add(dup); err != nil {
			return err
		}
	}
	v.StartModify()
	defer v.EndModify()
	v.stored = child
	v.SetStoredTime(time.Now())
	return nil
}

// RestoreSceneView brings the live scene back to what v stored. Live nodes
// the view does not contain would be deleted; unless removeExtraneous is
// set, RestoreSceneView then returns a *domain.StaleRestoreConflictError
// listing them and leaves the scene untouched.
func (s *Scene) RestoreSceneView(v *SceneView, removeExtraneous bool) error {
	if v.stored == nil {
		return domain.ErrNothingStored
	}
	var extraneous []domain.Node
	var ids []string
	for _, n := range s.nodes {
		if v.stored.NodeByID(n.ID()) != nil || s.protectedFromRestore(n) {
			continue
		}
		extraneous = append(extraneous, n)
		ids = append(ids, n.ID())
	}
	if len(extraneous) > 0 && !removeExtraneous {
		return &domain.StaleRestoreConflictError{NodeIDs: ids}
	}

	s.StartState(domain.StateRestore)
	defer s.EndState(domain.StateRestore)
	for _, n := range extraneous {
		if err := s.RemoveNode(n); err != nil {
			return err
		}
	}
	stored := v.stored.Nodes()
	for i, n := range stored {
		if live := s.NodeByID(n.ID()); live != nil {
			if err := s.copyInto(live, n); err != nil {
				return err
			}
		} else {
			dup, err := s.cloneNode(n)
			if err != nil {
				return err
			}
			if _, err := s.AddNode(dup); err != nil {
				return err
			}
		}
		s.ProgressState(domain.StateRestore, (i+1)*100/len(stored))
	}
	s.UpdateReferences()
	return nil
}
