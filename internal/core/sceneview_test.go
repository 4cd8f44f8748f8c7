package core_test

import (
	"errors"
	"reflect"
	"testing"

	"scenegraph/internal/core"
	"scenegraph/pkg/domain"
)

func addSceneView(t *testing.T, s *core.Scene, name string) *core.SceneView {
	t.Helper()
	sv := mustAdd(t, s, domain.ClassSceneView).(*core.SceneView)
	sv.SetName(name)
	return sv
}

func TestStoreSceneViewCapturesStorableNodes(t *testing.T) {
	s := core.NewScene()
	vol := mustAdd(t, s, domain.ClassVolume)
	cam := mustAdd(t, s, domain.ClassCamera)
	cam.Base().SetSaveWithScene(false)
	hidden := mustAdd(t, s, domain.ClassVolumeDisplay)
	hidden.Base().SetSaveWithScene(false)
	sv := addSceneView(t, s, "checkpoint")
	entry := mustAdd(t, s, domain.ClassHierarchy).(*domain.Hierarchy)
	entry.SetAssociatedNodeID(sv.ID())

	if sv.HasStoredScene() {
		t.Fatalf("view must start empty")
	}
	if err := s.StoreSceneView(sv); err != nil {
		t.Fatalf("store: %v", err)
	}
	if got := sv.NumberOfStoredNodes(); got != 2 {
		t.Fatalf("expected volume and camera stored, got %d", got)
	}
	if sv.StoredNode(vol.ID()) == nil || sv.StoredNode(cam.ID()) == nil {
		t.Fatalf("stored copies must keep their ids")
	}
	if sv.StoredNode(vol.ID()) == vol {
		t.Fatalf("stored node must be a copy")
	}
	if sv.StoredNode(hidden.ID()) != nil || sv.StoredNode(entry.ID()) != nil {
		t.Fatalf("unsaved nodes and scene view hierarchy entries must be skipped")
	}
	if sv.StoredTime().IsZero() {
		t.Fatalf("expected store time")
	}
}

func TestRestoreSceneViewConflict(t *testing.T) {
	s := core.NewScene()
	vol := mustAdd(t, s, domain.ClassVolume).(*domain.Volume)
	vol.Modify(func() { vol.Window = 10 })
	sv := addSceneView(t, s, "before")
	if err := s.StoreSceneView(sv); err != nil {
		t.Fatalf("store: %v", err)
	}

	vol.Modify(func() { vol.Window = 99 })
	late := mustAdd(t, s, domain.ClassVolume)

	err := s.RestoreSceneView(sv, false)
	var conflict *domain.StaleRestoreConflictError
	if !errors.As(err, &conflict) || !errors.Is(err, domain.ErrStaleRestore) {
		t.Fatalf("expected stale restore conflict, got %v", err)
	}
	if len(conflict.NodeIDs) != 1 || conflict.NodeIDs[0] != late.ID() {
		t.Fatalf("conflict ids = %v", conflict.NodeIDs)
	}
	if vol.Window != 99 || !s.IsNodePresent(late) {
		t.Fatalf("a refused restore must leave the scene untouched")
	}

	if err := s.RestoreSceneView(sv, true); err != nil {
		t.Fatalf("forced restore: %v", err)
	}
	if vol.Window != 10 || s.IsNodePresent(late) {
		t.Fatalf("forced restore incomplete: window=%v late=%v", vol.Window, s.IsNodePresent(late))
	}
	if !s.IsNodePresent(sv) {
		t.Fatalf("scene views survive restores")
	}
}

func TestRestoreSceneViewReAddsRemovedNodes(t *testing.T) {
	s := core.NewScene()
	vol := mustAdd(t, s, domain.ClassVolume).(*domain.Volume)
	disp := mustAdd(t, s, domain.ClassVolumeDisplay)
	vol.SetDisplayNodeID(disp.ID())
	sv := addSceneView(t, s, "full")
	if err := s.StoreSceneView(sv); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := s.RemoveNode(disp); err != nil {
		t.Fatalf("remove: %v", err)
	}
	s.UpdateReferences()

	var states []domain.StateFlag
	s.Subscribe(func(ev domain.Event) {
		if ev.Type == domain.EventStateStarted {
			states = append(states, ev.State)
		}
	})
	if err := s.RestoreSceneView(sv, false); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if s.NodeByID(disp.ID()) == nil || vol.DisplayNodeID() != disp.ID() {
		t.Fatalf("display not restored: node=%v ref=%q", s.NodeByID(disp.ID()), vol.DisplayNodeID())
	}
	if len(states) != 2 || states[1] != domain.StateRestore {
		t.Fatalf("expected restore state transitions, got %v", states)
	}
	if s.IsRestoring() {
		t.Fatalf("restore state must end")
	}
}

func TestRestoreUnstoredSceneView(t *testing.T) {
	s := core.NewScene()
	sv := addSceneView(t, s, "empty")
	if err := s.RestoreSceneView(sv, true); !errors.Is(err, domain.ErrNothingStored) {
		t.Fatalf("expected ErrNothingStored, got %v", err)
	}
}

func TestCopySceneViewDeepCopiesStoredScene(t *testing.T) {
	s := core.NewScene()
	vol := mustAdd(t, s, domain.ClassVolume)
	sv := addSceneView(t, s, "orig")
	sv.ScreenshotType = 2
	if err := s.StoreSceneView(sv); err != nil {
		t.Fatalf("store: %v", err)
	}

	n, err := s.CopyNode(sv)
	if err != nil {
		t.Fatalf("copy: %v", err)
	}
	dup := n.(*core.SceneView)
	if dup.NumberOfStoredNodes() != 1 || dup.ScreenshotType != 2 {
		t.Fatalf("copy lost stored scene: %d nodes, screenshot %d", dup.NumberOfStoredNodes(), dup.ScreenshotType)
	}
	if dup.StoredNode(vol.ID()) == sv.StoredNode(vol.ID()) {
		t.Fatalf("stored nodes must not be shared between views")
	}
}

func TestSceneViewsAreNotUndone(t *testing.T) {
	s := core.NewScene()
	mustAdd(t, s, domain.ClassVolume)
	if err := s.SaveStateForUndo(); err != nil {
		t.Fatalf("save: %v", err)
	}
	sv := addSceneView(t, s, "kept")
	if _, err := s.UndoLast(); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if !s.IsNodePresent(sv) {
		t.Fatalf("scene views are outside undo history")
	}
}

// sceneState describes every live node by ID, ignoring modification clocks.
func sceneState(s *core.Scene) map[string]core.NodeView {
	out := make(map[string]core.NodeView, s.NumberOfNodes())
	for _, n := range s.Nodes() {
		v := core.Describe(n)
		v.ModifiedTime = 0
		out[v.ID] = v
	}
	return out
}

func assertSceneState(t *testing.T, s *core.Scene, want map[string]core.NodeView) {
	t.Helper()
	got := sceneState(s)
	if len(got) != len(want) {
		t.Fatalf("scene has %d nodes, want %d", len(got), len(want))
	}
	for id, w := range want {
		if g, ok := got[id]; !ok || !reflect.DeepEqual(g, w) {
			t.Fatalf("node %s = %+v, want %+v", id, g, w)
		}
	}
}

// buildOrderedScene returns a scene with references and a hierarchy where
// root Y sits at sort value zero ahead of X, and P has children A then B.
func buildOrderedScene(t *testing.T) (*core.Scene, map[string]*domain.Hierarchy) {
	t.Helper()
	s := core.NewScene()
	vol := mustAdd(t, s, domain.ClassVolume).(*domain.Volume)
	disp := mustAdd(t, s, domain.ClassVolumeDisplay)
	xf := mustAdd(t, s, domain.ClassLinearTransform)
	vol.SetDisplayNodeID(disp.ID())
	vol.SetTransformNodeID(xf.ID())

	h := make(map[string]*domain.Hierarchy)
	for _, name := range []string{"X", "Y", "P", "A", "B"} {
		h[name] = addHierarchy(t, s, name)
	}
	h["A"].SetAssociatedNodeID(vol.ID())
	if err := s.Hierarchy().SetIndexInParent(h["Y"], 0); err != nil {
		t.Fatalf("set index: %v", err)
	}
	if h["Y"].SortingValue() != 0 {
		t.Fatalf("expected Y placed at zero, got %v", h["Y"].SortingValue())
	}
	for _, name := range []string{"A", "B"} {
		if err := s.Reparent(h[name].ID(), h["P"].ID()); err != nil {
			t.Fatalf("reparent %s: %v", name, err)
		}
	}
	assertOrder(t, s.ChildrenOf(""), "Y", "X", "P")
	assertOrder(t, s.ChildrenOf(h["P"].ID()), "A", "B")
	return s, h
}

func TestStoreRestoreIsIdempotent(t *testing.T) {
	s, h := buildOrderedScene(t)
	sv := addSceneView(t, s, "whole")
	if err := s.StoreSceneView(sv); err != nil {
		t.Fatalf("store: %v", err)
	}
	want := sceneState(s)

	if err := s.RestoreSceneView(sv, false); err != nil {
		t.Fatalf("restore: %v", err)
	}
	assertSceneState(t, s, want)
	assertOrder(t, s.ChildrenOf(""), "Y", "X", "P")

	vol := s.NodesByClass(domain.ClassVolume)[0].(*domain.Volume)
	vol.Modify(func() { vol.Window = 7 })
	if err := s.RemoveNode(h["Y"]); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := s.Reparent(h["B"].ID(), ""); err != nil {
		t.Fatalf("reparent: %v", err)
	}
	mustAdd(t, s, domain.ClassCamera)

	if err := s.RestoreSceneView(sv, true); err != nil {
		t.Fatalf("forced restore: %v", err)
	}
	assertSceneState(t, s, want)
	assertOrder(t, s.ChildrenOf(""), "Y", "X", "P")
	assertOrder(t, s.ChildrenOf(h["P"].ID()), "A", "B")
}
