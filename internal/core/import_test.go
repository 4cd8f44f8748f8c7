package core_test

import (
	"testing"

	"scenegraph/internal/core"
	"scenegraph/pkg/domain"
)

func detached(t *testing.T, n domain.Node, id string) domain.Node {
	t.Helper()
	if err := n.Base().SetID(id); err != nil {
		t.Fatalf("set id %s: %v", id, err)
	}
	return n
}

func TestImportRemapsCollidingIDs(t *testing.T) {
	s := core.NewScene()
	existing := mustAdd(t, s, domain.ClassVolumeDisplay)

	vol := domain.NewVolume()
	detached(t, vol, "VolumeNode")
	vol.SetDisplayNodeID("VolumeDisplayNode")
	disp := detached(t, domain.NewVolumeDisplay(), "VolumeDisplayNode")

	added, err := s.Import([]domain.Node{vol, disp})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(added) != 2 || added[0] != vol || added[1] != disp {
		t.Fatalf("unexpected import result %v", ids(added))
	}
	if disp.ID() != "VolumeDisplayNode_1" {
		t.Fatalf("expected colliding display renamed, got %q", disp.ID())
	}
	if vol.DisplayNodeID() != disp.ID() {
		t.Fatalf("imported reference not remapped: %q", vol.DisplayNodeID())
	}
	if len(s.ReferencingNodes(existing.ID())) != 0 {
		t.Fatalf("existing display must not gain holders")
	}
	changes := s.IDChanges()
	if len(changes) != 1 || changes[0] != [2]string{"VolumeDisplayNode", "VolumeDisplayNode_1"} {
		t.Fatalf("id changes = %v", changes)
	}
}

func TestImportHealsDanglingReferences(t *testing.T) {
	s := core.NewScene()
	vol := domain.NewVolume()
	detached(t, vol, "VolumeNode")
	vol.SetTransformNodeID("LinearTransformNode")

	if _, err := s.Import([]domain.Node{vol}); err != nil {
		t.Fatalf("import: %v", err)
	}
	if vol.TransformNodeID() != "" {
		t.Fatalf("expected dangling transform cleared, got %q", vol.TransformNodeID())
	}
}

func TestImportMergesSingletons(t *testing.T) {
	s := core.NewScene()
	red := domain.NewView()
	red.SetSingletonTag("Red")
	if _, err := s.AddNode(red); err != nil {
		t.Fatalf("add: %v", err)
	}

	incoming := domain.NewView()
	detached(t, incoming, "ViewRedFromFile")
	incoming.SetSingletonTag("Red")
	incoming.LayoutLabel = "imported"
	vol := domain.NewVolume()
	detached(t, vol, "VolumeNode")
	vol.SetNodeReferenceID("view", "ViewRedFromFile")

	added, err := s.Import([]domain.Node{incoming, vol})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if added[0] != red || red.LayoutLabel != "imported" {
		t.Fatalf("expected merge into the live singleton")
	}
	if vol.NodeReferenceID("view") != red.ID() {
		t.Fatalf("reference to merged singleton not remapped: %q", vol.NodeReferenceID("view"))
	}
	if id, ok := s.ChangedID("ViewRedFromFile"); !ok || id != red.ID() {
		t.Fatalf("merge must record an id change, got %q %v", id, ok)
	}
}

func TestImportRunsInsideImportState(t *testing.T) {
	s := core.NewScene()
	var sawImport bool
	var lastProgress int
	s.Subscribe(func(ev domain.Event) {
		switch {
		case ev.Type == domain.EventNodeAdded:
			sawImport = sawImport || s.IsImporting()
		case ev.Type == domain.EventStateProgress && ev.State == domain.StateImport:
			lastProgress = ev.Progress
		}
	})
	if _, err := s.Import([]domain.Node{domain.NewVolume(), domain.NewCamera()}); err != nil {
		t.Fatalf("import: %v", err)
	}
	if !sawImport || lastProgress != 100 || s.IsImporting() {
		t.Fatalf("import state not observed: saw=%v progress=%d", sawImport, lastProgress)
	}
	if s.IsIDReserved("VolumeNode") {
		t.Fatalf("reservations must be released after import")
	}
}

func TestClearKeepsSingletonsUnlessAsked(t *testing.T) {
	s := core.NewScene()
	mustAdd(t, s, domain.ClassVolume)
	red := domain.NewView()
	red.SetSingletonTag("Red")
	red.LayoutLabel = "custom"
	if _, err := s.AddNode(red); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.SaveStateForUndo(); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := s.Clear(false); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if s.NumberOfNodes() != 1 || !s.IsNodePresent(red) {
		t.Fatalf("singleton must survive clear, nodes=%d", s.NumberOfNodes())
	}
	if red.LayoutLabel != "" || red.SingletonTag() != "Red" {
		t.Fatalf("singleton not reset: %+v tag=%q", red.ViewContent, red.SingletonTag())
	}
	if s.Undo().UndoDepth() != 0 {
		t.Fatalf("clear must drop undo history")
	}
	if fresh := mustAdd(t, s, domain.ClassVolume); fresh.ID() != "VolumeNode" {
		t.Fatalf("id generation should restart after clear, got %q", fresh.ID())
	}

	if err := s.Clear(true); err != nil {
		t.Fatalf("clear all: %v", err)
	}
	if s.NumberOfNodes() != 0 || s.References().Len() != 0 {
		t.Fatalf("expected empty scene")
	}
}
