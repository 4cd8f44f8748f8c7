package core

import (
	"sort"

	"scenegraph/pkg/domain"
)

// HierarchyIndex caches parent ID to ordered children. The cache is valid
// only while its watermark equals the scene clock; any scene change makes
// it stale and the next read rebuilds it in full.
type HierarchyIndex struct {
	scene     *Scene
	built     bool
	watermark uint64
	children  map[string][]domain.Hierarchical
	rebuilds  int
}

func newHierarchyIndex(s *Scene) *HierarchyIndex {
	return &HierarchyIndex{scene: s}
}

// Valid reports whether the cache reflects the current scene clock.
func (h *HierarchyIndex) Valid() bool {
	return h.built && h.watermark == h.scene.clock
}

// Rebuilds counts full rebuilds since the scene was created.
func (h *HierarchyIndex) Rebuilds() int { return h.rebuilds }

func (h *HierarchyIndex) invalidate() {
	h.built = false
	h.children = nil
}

// Rebuild scans every hierarchy node, groups by parent ID and orders each
// group by ascending sort value, ties in insertion order.
func (h *HierarchyIndex) Rebuild() {
	children := make(map[string][]domain.Hierarchical)
	maxValue := h.scene.maxSortingValue
	for _, n := range h.scene.nodes {
		node, ok := n.(domain.Hierarchical)
		if !ok {
			continue
		}
		parent := node.ParentNodeID()
		children[parent] = append(children[parent], node)
		if node.SortingValue() > maxValue {
			maxValue = node.SortingValue()
		}
	}
	for _, list := range children {
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].SortingValue() < list[j].SortingValue()
		})
	}
	h.children = children
	h.scene.maxSortingValue = maxValue
	h.watermark = h.scene.clock
	h.built = true
	h.rebuilds++
}

func (h *HierarchyIndex) ensure() {
	if !h.Valid() {
		h.Rebuild()
	}
}

// ChildrenOf returns the ordered children of parentID; "" lists roots.
func (h *HierarchyIndex) ChildrenOf(parentID string) []domain.Hierarchical {
	h.ensure()
	return append([]domain.Hierarchical(nil), h.children[parentID]...)
}

// AllChildren returns every descendant of parentID depth first.
func (h *HierarchyIndex) AllChildren(parentID string) []domain.Hierarchical {
	var out []domain.Hierarchical
	visited := map[string]struct{}{parentID: {}}
	var walk func(id string)
	walk = func(id string) {
		for _, c := range h.ChildrenOf(id) {
			if _, seen := visited[c.ID()]; seen {
				continue
			}
			visited[c.ID()] = struct{}{}
			out = append(out, c)
			walk(c.ID())
		}
	}
	walk(parentID)
	return out
}

// Parent resolves the parent of node, or nil for roots.
func (h *HierarchyIndex) Parent(node domain.Hierarchical) domain.Hierarchical {
	p, _ := h.scene.NodeByID(node.ParentNodeID()).(domain.Hierarchical)
	return p
}

// Reparent moves node under newParentID ("" for root) and places it after
// every existing sibling by giving it the scene's next sort value.
func (h *HierarchyIndex) Reparent(node domain.Hierarchical, newParentID string) error {
	if !h.scene.IsNodePresent(node) {
		return domain.ErrNotInScene
	}
	if newParentID == node.ID() {
		h.scene.logger.Warn("refusing to parent hierarchy node to itself", "id", node.ID())
		return domain.ErrSelfParent
	}
	if newParentID == node.ParentNodeID() {
		return nil
	}
	if newParentID != "" {
		parent, ok := h.scene.NodeByID(newParentID).(domain.Hierarchical)
		if !ok {
			if h.scene.NodeByID(newParentID) == nil {
				return domain.NotFoundError{ID: newParentID}
			}
			return domain.ErrNotHierarchical
		}
		for p := parent; p != nil; p = h.Parent(p) {
			if p.ID() == node.ID() {
				return domain.ErrHierarchyCycle
			}
		}
	}
	b := node.Base()
	b.StartModify()
	defer b.EndModify()
	if err := node.SetParentNodeID(newParentID); err != nil {
		return err
	}
	node.SetSortingValue(h.scene.nextSortingValue())
	h.scene.touch()
	return nil
}

// IndexInParent returns node's position among its siblings, or -1.
func (h *HierarchyIndex) IndexInParent(node domain.Hierarchical) int {
	for i, c := range h.ChildrenOf(node.ParentNodeID()) {
		if c == node {
			return i
		}
	}
	return -1
}

// MoveWithinParent shifts node by delta positions among its siblings by
// swapping sort values with the adjacent sibling one step at a time. The
// index is rebuilt before every swap.
func (h *HierarchyIndex) MoveWithinParent(node domain.Hierarchical, delta int) error {
	if delta == 0 {
		return nil
	}
	parentID := node.ParentNodeID()
	siblings := h.ChildrenOf(parentID)
	from := h.IndexInParent(node)
	if from < 0 {
		return domain.ErrNotInScene
	}
	if from+delta < 0 || from+delta >= len(siblings) {
		return domain.ErrIndexOutOfRange
	}
	step := 1
	if delta < 0 {
		step = -1
		delta = -delta
	}
	h.separateTies(siblings)
	i := from
	for k := 0; k < delta; k++ {
		siblings = h.ChildrenOf(parentID)
		a, b := siblings[i], siblings[i+step]
		va, vb := a.SortingValue(), b.SortingValue()
		a.SetSortingValue(vb)
		b.SetSortingValue(va)
		h.scene.touch()
		i += step
	}
	return nil
}

// separateTies renumbers an ordered sibling run from its first value when
// any two siblings share a value. The current order is kept.
func (h *HierarchyIndex) separateTies(siblings []domain.Hierarchical) {
	tied := false
	for i := 1; i < len(siblings); i++ {
		if siblings[i].SortingValue() == siblings[i-1].SortingValue() {
			tied = true
			break
		}
	}
	if !tied {
		return
	}
	base := siblings[0].SortingValue()
	for i, n := range siblings {
		n.SetSortingValue(base + float64(i))
	}
	if last := base + float64(len(siblings)-1); last > h.scene.maxSortingValue {
		h.scene.maxSortingValue = last
	}
	h.scene.touch()
}

// SetIndexInParent places node at index among its siblings by choosing a
// sort value between its new neighbours.
func (h *HierarchyIndex) SetIndexInParent(node domain.Hierarchical, index int) error {
	siblings := h.ChildrenOf(node.ParentNodeID())
	old := h.IndexInParent(node)
	if old < 0 {
		return domain.ErrNotInScene
	}
	if index < 0 || index >= len(siblings) {
		return domain.ErrIndexOutOfRange
	}
	if index == old {
		return nil
	}
	value := siblings[index].SortingValue()
	switch {
	case index == 0:
		value--
	case index == len(siblings)-1:
		value++
	case index > old:
		value = 0.5 * (value + siblings[index+1].SortingValue())
	default:
		value = 0.5 * (value + siblings[index-1].SortingValue())
	}
	node.SetSortingValue(value)
	h.scene.touch()
	return nil
}

// AssociatedHierarchyNode returns the first hierarchy node associated with
// nodeID, or nil.
func (h *HierarchyIndex) AssociatedHierarchyNode(nodeID string) domain.Hierarchical {
	if nodeID == "" {
		return nil
	}
	for _, n := range h.scene.nodes {
		if node, ok := n.(domain.Hierarchical); ok && node.AssociatedNodeID() == nodeID {
			return node
		}
	}
	return nil
}

// promoteChildren re-parents the children of a node about to be removed to
// that node's own parent.
func (h *HierarchyIndex) promoteChildren(node domain.Hierarchical) {
	parentID := node.ParentNodeID()
	if h.scene.NodeByID(parentID) == nil {
		parentID = ""
	}
	for _, child := range h.ChildrenOf(node.ID()) {
		if err := h.Reparent(child, parentID); err != nil {
			h.scene.logger.Warn("promote hierarchy child", "id", child.ID(), "parent", parentID, "err", err)
		}
	}
}

// Reparent is shorthand for the hierarchy index operation on node IDs.
func (s *Scene) Reparent(nodeID, parentID string) error {
	n := s.NodeByID(nodeID)
	if n == nil {
		return domain.NotFoundError{ID: nodeID}
	}
	h, ok := n.(domain.Hierarchical)
	if !ok {
		return domain.ErrNotHierarchical
	}
	return s.hierarchy.Reparent(h, parentID)
}

// ChildrenOf is shorthand for the hierarchy index lookup.
func (s *Scene) ChildrenOf(parentID string) []domain.Hierarchical {
	return s.hierarchy.ChildrenOf(parentID)
}
