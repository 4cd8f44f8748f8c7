package core

import (
	"fmt"

	"scenegraph/pkg/domain"
)

// Import adds a batch of detached nodes, typically decoded from a serialized
// scene, inside the Import state. Nodes whose ID collides with a live node get
// a fresh ID and singleton nodes merge into their live counterpart; either way
// the references held by the imported nodes are rewritten to the surviving
// IDs. Dangling references among the imported nodes are healed last. The
// returned slice holds the node each input ended up as.
func (s *Scene) Import(nodes []domain.Node) ([]domain.Node, error) {
	s.StartState(domain.StateImport)
	defer s.EndState(domain.StateImport)
	s.clearIDChanges()

	var reserved []string
	for _, n := range nodes {
		if n == nil {
			continue
		}
		if id := n.ID(); id != "" && !s.IsIDReserved(id) {
			reserved = append(reserved, id)
		}
	}
	s.ReserveIDs(reserved...)
	defer s.ReleaseIDs(reserved...)

	added := make([]domain.Node, 0, len(nodes))
	for i, n := range nodes {
		got, err := s.AddNode(n)
		if err != nil {
			return added, fmt.Errorf("import node %d: %w", i, err)
		}
		added = append(added, got)
		s.ProgressState(domain.StateImport, (i+1)*100/len(nodes))
	}
	for _, oldID := range s.idChangeKeys {
		s.refs.RemapReference(oldID, s.idChanges[oldID], added...)
	}
	if healed := s.refs.UpdateReferences(added...); healed > 0 {
		s.logger.Debug("healed dangling references after import", "count", healed)
	}
	return added, nil
}

// IDChanges returns the ID rewrites made by the last Import, keyed by the
// incoming ID, in the order they happened.
func (s *Scene) IDChanges() [][2]string {
	out := make([][2]string, 0, len(s.idChangeKeys))
	for _, k := range s.idChangeKeys {
		out = append(out, [2]string{k, s.idChanges[k]})
	}
	return out
}

// Clear empties the scene inside the Close state. Singleton nodes survive
// with their content reset unless removeSingletons is set. Undo history,
// reserved IDs and generation counters are dropped.
func (s *Scene) Clear(removeSingletons bool) error {
	s.StartState(domain.StateClose)
	defer s.EndState(domain.StateClose)

	for i := len(s.nodes) - 1; i >= 0; i-- {
		n := s.nodes[i]
		if n.Base().SingletonTag() != "" && !removeSingletons {
			continue
		}
		if err := s.RemoveNode(n); err != nil {
			return err
		}
	}
	for _, n := range s.Nodes() {
		if err := s.ResetNode(n); err != nil {
			return err
		}
	}

	s.undo.ClearUndoStack()
	s.undo.ClearRedoStack()
	s.reserved = make(map[string]struct{})
	s.idCounters = make(map[string]int)
	s.nameCounters = make(map[string]int)
	s.clearIDChanges()
	s.refs.reset()
	for _, n := range s.nodes {
		for _, target := range n.Base().ReferencedIDs() {
			s.refs.AddReference(target, n.ID())
		}
	}
	s.maxSortingValue = 0
	s.hierarchy.invalidate()
	s.touch()
	return nil
}
