package core

import (
	"sort"

	"scenegraph/pkg/domain"
)

// ReferenceTracker maps a referenced node ID to the IDs of the nodes that
// hold it in one of their reference slots. An entry exists exactly while
// the holder holds the target.
type ReferenceTracker struct {
	scene   *Scene
	holders map[string][]string
}

func newReferenceTracker(s *Scene) *ReferenceTracker {
	return &ReferenceTracker{scene: s, holders: make(map[string][]string)}
}

// AddReference records that holderID references targetID. Idempotent.
func (t *ReferenceTracker) AddReference(targetID, holderID string) {
	if targetID == "" || holderID == "" {
		return
	}
	for _, h := range t.holders[targetID] {
		if h == holderID {
			return
		}
	}
	t.holders[targetID] = append(t.holders[targetID], holderID)
}

// RemoveReference drops the (targetID, holderID) entry.
func (t *ReferenceTracker) RemoveReference(targetID, holderID string) {
	list := t.holders[targetID]
	for i, h := range list {
		if h == holderID {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(t.holders, targetID)
		return
	}
	t.holders[targetID] = list
}

// RemoveHolder drops every entry held by holderID.
func (t *ReferenceTracker) RemoveHolder(holderID string) {
	for _, target := range t.Targets() {
		t.RemoveReference(target, holderID)
	}
}

// Holders returns the IDs of nodes referencing targetID.
func (t *ReferenceTracker) Holders(targetID string) []string {
	return append([]string(nil), t.holders[targetID]...)
}

// Targets returns every tracked target ID in ascending order.
func (t *ReferenceTracker) Targets() []string {
	out := make([]string, 0, len(t.holders))
	for id := range t.holders {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Len is the number of (target, holder) entries.
func (t *ReferenceTracker) Len() int {
	n := 0
	for _, hs := range t.holders {
		n += len(hs)
	}
	return n
}

func (t *ReferenceTracker) reset() {
	t.holders = make(map[string][]string)
}

// UpdateReferences heals dangling references: for each tracked target that
// no longer resolves, every holder among candidates (all nodes when none are
// given) gets OnReferenceRemoved. It returns the number of callbacks made.
func (t *ReferenceTracker) UpdateReferences(candidates ...domain.Node) int {
	allowed := candidateSet(candidates)
	healed := 0
	for _, target := range t.Targets() {
		if t.scene.NodeByID(target) != nil {
			continue
		}
		for _, holderID := range t.Holders(target) {
			if allowed != nil {
				if _, ok := allowed[holderID]; !ok {
					continue
				}
			}
			holder := t.scene.NodeByID(holderID)
			if holder == nil {
				t.RemoveReference(target, holderID)
				continue
			}
			holder.OnReferenceRemoved(target)
			healed++
		}
	}
	return healed
}

// RemapReference rewrites oldID to newID in every holder among candidates
// (all holders when none are given) and moves the tracking entries.
func (t *ReferenceTracker) RemapReference(oldID, newID string, candidates ...domain.Node) {
	if oldID == "" || oldID == newID {
		return
	}
	allowed := candidateSet(candidates)
	for _, holderID := range t.Holders(oldID) {
		if allowed != nil {
			if _, ok := allowed[holderID]; !ok {
				continue
			}
		}
		holder := t.scene.NodeByID(holderID)
		if holder == nil {
			t.RemoveReference(oldID, holderID)
			continue
		}
		holder.Base().UpdateReferenceID(oldID, newID)
	}
}

// ReferencedClosure returns n followed by the nodes it references,
// breadth first and without duplicates. When recursive is false only direct
// references are followed. Unresolved IDs are skipped.
func (t *ReferenceTracker) ReferencedClosure(n domain.Node, recursive bool) []domain.Node {
	if n == nil {
		return nil
	}
	out := []domain.Node{n}
	visited := map[string]struct{}{n.ID(): {}}
	queue := []domain.Node{n}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, id := range cur.Base().ReferencedIDs() {
			if _, seen := visited[id]; seen {
				continue
			}
			ref := t.scene.NodeByID(id)
			if ref == nil {
				continue
			}
			visited[id] = struct{}{}
			out = append(out, ref)
			if recursive {
				queue = append(queue, ref)
			}
		}
	}
	return out
}

func candidateSet(nodes []domain.Node) map[string]struct{} {
	if len(nodes) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		if n != nil {
			set[n.ID()] = struct{}{}
		}
	}
	return set
}

// UpdateReferences heals dangling references across the scene.
func (s *Scene) UpdateReferences(candidates ...domain.Node) int {
	return s.refs.UpdateReferences(candidates...)
}

// ReferencedClosure is shorthand for the tracker's closure walk.
func (s *Scene) ReferencedClosure(n domain.Node, recursive bool) []domain.Node {
	return s.refs.ReferencedClosure(n, recursive)
}

// ReferencingNodes returns the live nodes referencing id.
func (s *Scene) ReferencingNodes(id string) []domain.Node {
	var out []domain.Node
	for _, h := range s.refs.Holders(id) {
		if n := s.NodeByID(h); n != nil {
			out = append(out, n)
		}
	}
	return out
}
