package core

import (
	"github.com/google/uuid"

	"scenegraph/pkg/domain"
)

// DefaultUndoDepth bounds the undo and redo stacks unless configured.
const DefaultUndoDepth = 10

// snapshot is a point-in-time capture of the undo-enabled nodes. sceneIDs is
// every ID live when the capture was taken, undo-enabled or not; nodeIDs
// holds the IDs of the captured copies.
type snapshot struct {
	id       string
	nodes    []domain.Node
	nodeIDs  map[string]struct{}
	sceneIDs map[string]struct{}
}

func (s *snapshot) has(id string) bool {
	_, ok := s.sceneIDs[id]
	return ok
}

// UndoRedoEngine keeps bounded stacks of full node snapshots.
type UndoRedoEngine struct {
	scene    *Scene
	enabled  bool
	maxDepth int
	undo     []*snapshot
	redo     []*snapshot
}

func newUndoRedoEngine(s *Scene) *UndoRedoEngine {
	return &UndoRedoEngine{scene: s, enabled: true, maxDepth: DefaultUndoDepth}
}

// Enabled reports whether SaveStateForUndo records anything.
func (u *UndoRedoEngine) Enabled() bool { return u.enabled }

// SetEnabled toggles undo bookkeeping. Disabling clears both stacks.
func (u *UndoRedoEngine) SetEnabled(v bool) {
	u.enabled = v
	if !v {
		u.ClearUndoStack()
		u.ClearRedoStack()
	}
}

// MaxDepth returns the stack bound; zero means unbounded.
func (u *UndoRedoEngine) MaxDepth() int { return u.maxDepth }

// SetMaxDepth bounds both stacks, discarding the oldest entries beyond it.
// A depth of zero or less removes the bound.
func (u *UndoRedoEngine) SetMaxDepth(depth int) {
	if depth < 0 {
		depth = 0
	}
	u.maxDepth = depth
	u.undo = u.trim(u.undo)
	u.redo = u.trim(u.redo)
}

func (u *UndoRedoEngine) UndoDepth() int  { return len(u.undo) }
func (u *UndoRedoEngine) RedoDepth() int  { return len(u.redo) }
func (u *UndoRedoEngine) ClearUndoStack() { u.undo = nil }
func (u *UndoRedoEngine) ClearRedoStack() { u.redo = nil }

func (u *UndoRedoEngine) trim(stack []*snapshot) []*snapshot {
	if u.maxDepth > 0 && len(stack) > u.maxDepth {
		drop := len(stack) - u.maxDepth
		stack = append([]*snapshot(nil), stack[drop:]...)
	}
	return stack
}

// SaveStateForUndo captures every undo-enabled node and clears the redo
// stack. Nothing is recorded while undo is disabled, while batch processing
// or while an undo or redo is being applied.
func (u *UndoRedoEngine) SaveStateForUndo() error {
	s := u.scene
	if !u.enabled || s.IsBatchProcessing() || s.IsUndoing() || s.IsRedoing() {
		return nil
	}
	snap, err := u.capture()
	if err != nil {
		return err
	}
	u.undo = u.trim(append(u.undo, snap))
	u.redo = nil
	return nil
}

func (u *UndoRedoEngine) capture() (*snapshot, error) {
	s := u.scene
	snap := &snapshot{
		id:       uuid.NewString(),
		nodeIDs:  make(map[string]struct{}),
		sceneIDs: make(map[string]struct{}, len(s.nodes)),
	}
	for _, n := range s.nodes {
		snap.sceneIDs[n.ID()] = struct{}{}
		if !u.tracked(n) {
			continue
		}
		dup, err := s.cloneNode(n)
		if err != nil {
			return nil, err
		}
		snap.nodes = append(snap.nodes, dup)
		snap.nodeIDs[dup.ID()] = struct{}{}
	}
	return snap, nil
}

// holdsID reports whether any undo or redo capture can re-add a node under
// id. Such IDs stay parked even while no live node uses them.
func (u *UndoRedoEngine) holdsID(id string) bool {
	for _, stack := range [][]*snapshot{u.undo, u.redo} {
		for _, snap := range stack {
			if _, ok := snap.nodeIDs[id]; ok {
				return true
			}
		}
	}
	return false
}

func (u *UndoRedoEngine) tracked(n domain.Node) bool {
	return n.Base().UndoEnabled() && n.ClassTag() != domain.ClassSceneView
}

// Undo restores the most recent capture. It reports false when the undo
// stack is empty.
func (u *UndoRedoEngine) Undo() (bool, error) {
	if len(u.undo) == 0 {
		return false, nil
	}
	s := u.scene
	s.StartState(domain.StateUndo)
	defer s.EndState(domain.StateUndo)
	snap := u.undo[len(u.undo)-1]
	current, err := u.capture()
	if err != nil {
		return false, err
	}
	u.undo = u.undo[:len(u.undo)-1]
	u.redo = u.trim(append(u.redo, current))
	return true, u.apply(snap)
}

// Redo re-applies the most recently undone state. It reports false when the
// redo stack is empty.
func (u *UndoRedoEngine) Redo() (bool, error) {
	if len(u.redo) == 0 {
		return false, nil
	}
	s := u.scene
	s.StartState(domain.StateRedo)
	defer s.EndState(domain.StateRedo)
	snap := u.redo[len(u.redo)-1]
	current, err := u.capture()
	if err != nil {
		return false, err
	}
	u.redo = u.redo[:len(u.redo)-1]
	u.undo = u.trim(append(u.undo, current))
	return true, u.apply(snap)
}

// apply brings the live scene back to snap. Nodes keep their IDs: missing
// ones are re-created under their original ID, which stays reserved until
// the apply completes.
func (u *UndoRedoEngine) apply(snap *snapshot) error {
	s := u.scene
	s.logger.Debug("apply undo snapshot", "snapshot", snap.id, "nodes", len(snap.nodes))
	var missing []string
	for _, n := range snap.nodes {
		if s.NodeByID(n.ID()) == nil {
			missing = append(missing, n.ID())
		}
	}
	s.ReserveIDs(missing...)
	defer s.ReleaseIDs(missing...)

	// nodes created after the capture go first so re-added singletons
	// cannot merge into them
	for _, n := range s.Nodes() {
		if u.tracked(n) && !snap.has(n.ID()) {
			if err := s.RemoveNode(n); err != nil {
				return err
			}
		}
	}
	for _, n := range snap.nodes {
		if live := s.NodeByID(n.ID()); live != nil {
			if err := s.copyInto(live, n); err != nil {
				return err
			}
			continue
		}
		dup, err := s.cloneNode(n)
		if err != nil {
			return err
		}
		if _, err := s.AddNode(dup); err != nil {
			return err
		}
	}
	s.UpdateReferences()
	return nil
}

// SaveStateForUndo is shorthand for the engine operation.
func (s *Scene) SaveStateForUndo() error { return s.undo.SaveStateForUndo() }

// UndoLast is shorthand for the engine's Undo.
func (s *Scene) UndoLast() (bool, error) { return s.undo.Undo() }

// RedoLast is shorthand for the engine's Redo.
func (s *Scene) RedoLast() (bool, error) { return s.undo.Redo() }
