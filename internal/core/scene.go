package core

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"

	"scenegraph/pkg/domain"
)

// Scene owns an ordered node collection and its indices. It is not safe for
// concurrent use; Service serialises access for shared callers.
type Scene struct {
	uid string

	nodes []domain.Node
	byID  map[string]domain.Node

	classes  map[string]domain.NodeClass
	defaults map[string]domain.Node

	reserved     map[string]struct{}
	idCounters   map[string]int
	nameCounters map[string]int
	idChanges    map[string]string
	idChangeKeys []string

	clock           uint64
	maxSortingValue float64

	refs      *ReferenceTracker
	hierarchy *HierarchyIndex
	undo      *UndoRedoEngine
	states    []domain.StateFlag

	listeners    map[int]domain.Listener
	listenerKeys []int
	nextListener int

	logger *slog.Logger
}

// SceneOption customises a Scene at construction.
type SceneOption func(*Scene)

// WithSceneLogger routes internal warnings to l.
func WithSceneLogger(l *slog.Logger) SceneOption {
	return func(s *Scene) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithUndoDepth bounds the undo and redo stacks.
func WithUndoDepth(depth int) SceneOption {
	return func(s *Scene) { s.undo.SetMaxDepth(depth) }
}

// WithUndoDisabled turns undo bookkeeping off.
func WithUndoDisabled() SceneOption {
	return func(s *Scene) { s.undo.SetEnabled(false) }
}

// NewScene returns an empty scene with the built-in node classes registered.
func NewScene(opts ...SceneOption) *Scene {
	s := &Scene{
		uid:          uuid.NewString(),
		byID:         make(map[string]domain.Node),
		classes:      make(map[string]domain.NodeClass),
		defaults:     make(map[string]domain.Node),
		reserved:     make(map[string]struct{}),
		idCounters:   make(map[string]int),
		nameCounters: make(map[string]int),
		idChanges:    make(map[string]string),
		listeners:    make(map[int]domain.Listener),
		logger:       slog.Default(),
	}
	s.refs = newReferenceTracker(s)
	s.hierarchy = newHierarchyIndex(s)
	s.undo = newUndoRedoEngine(s)
	for _, c := range domain.BuiltinClasses() {
		s.RegisterNodeClass(c)
	}
	s.RegisterNodeClass(domain.NodeClass{Tag: domain.ClassSceneView, New: func() domain.Node { return NewSceneView() }})
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// newChildScene creates an isolated scene sharing this scene's class
// registry. Used for scene view storage.
func (s *Scene) newChildScene() *Scene {
	child := NewScene(WithSceneLogger(s.logger), WithUndoDisabled())
	for tag, c := range s.classes {
		child.classes[tag] = c
	}
	return child
}

// SetLogger replaces the logger used for internal warnings.
func (s *Scene) SetLogger(l *slog.Logger) {
	if l != nil {
		s.logger = l
	}
}

// UID is a random identifier for this scene instance.
func (s *Scene) UID() string { return s.uid }

// References exposes the scene's reference tracker.
func (s *Scene) References() *ReferenceTracker { return s.refs }

// Hierarchy exposes the scene's hierarchy index.
func (s *Scene) Hierarchy() *HierarchyIndex { return s.hierarchy }

// Undo exposes the scene's undo/redo engine.
func (s *Scene) Undo() *UndoRedoEngine { return s.undo }

// ModifiedTime is the scene modification clock.
func (s *Scene) ModifiedTime() uint64 { return s.clock }

func (s *Scene) touch() uint64 {
	s.clock++
	return s.clock
}

// RegisterNodeClass adds or replaces a factory keyed by class tag.
func (s *Scene) RegisterNodeClass(c domain.NodeClass) {
	if c.Tag == "" || c.New == nil {
		return
	}
	s.classes[c.Tag] = c
}

// IsClassRegistered reports whether tag has a factory.
func (s *Scene) IsClassRegistered(tag string) bool {
	_, ok := s.classes[tag]
	return ok
}

// SetDefaultNode registers a template used to seed new nodes of its class
// and of classes that name it as parent. A nil node clears the default.
func (s *Scene) SetDefaultNode(tag string, def domain.Node) error {
	if _, ok := s.classes[tag]; !ok {
		return domain.UnknownClassError(tag)
	}
	if def == nil {
		delete(s.defaults, tag)
		return nil
	}
	s.defaults[tag] = def
	return nil
}

// DefaultNode returns the template that applies to tag, walking parent
// classes when tag has none of its own.
func (s *Scene) DefaultNode(tag string) domain.Node {
	seen := make(map[string]struct{})
	for tag != "" {
		if _, loop := seen[tag]; loop {
			return nil
		}
		seen[tag] = struct{}{}
		if def, ok := s.defaults[tag]; ok {
			return def
		}
		tag = s.classes[tag].Parent
	}
	return nil
}

func (s *Scene) newInstance(tag string) (domain.Node, error) {
	c, ok := s.classes[tag]
	if !ok {
		return nil, domain.UnknownClassError(tag)
	}
	return c.New(), nil
}

// CreateNode builds a detached node of the given class, seeded from the
// applicable default node. The scene is not modified.
func (s *Scene) CreateNode(tag string) (domain.Node, error) {
	n, err := s.newInstance(tag)
	if err != nil {
		return nil, err
	}
	if def := s.DefaultNode(tag); def != nil {
		if err := domain.ApplyDefaults(n, def); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// AddNode inserts n. A node carrying a singleton tag that matches an
// existing node of the same class is merged into that node instead, and the
// existing node is returned.
func (s *Scene) AddNode(n domain.Node) (domain.Node, error) {
	if n == nil {
		return nil, fmt.Errorf("add node: nil node")
	}
	if !s.IsClassRegistered(n.ClassTag()) {
		return nil, domain.UnknownClassError(n.ClassTag())
	}
	return s.add(n)
}

// add inserts n without consulting the class registry.
func (s *Scene) add(n domain.Node) (domain.Node, error) {
	tag := n.ClassTag()
	b := n.Base()
	if b.InScene() {
		if s.byID[b.ID()] == n {
			return n, nil
		}
		return nil, domain.ErrNodeAttached
	}

	if st := b.SingletonTag(); st != "" {
		if existing := s.SingletonNode(st, tag); existing != nil {
			if b.ID() != "" && b.ID() != existing.ID() {
				s.recordIDChange(b.ID(), existing.ID())
			}
			if err := s.copyInto(existing, n); err != nil {
				return nil, err
			}
			return existing, nil
		}
	}

	id := b.ID()
	switch {
	case id == "" && b.SingletonTag() != "":
		id = s.singletonID(tag, b.SingletonTag())
	case id == "":
		id = s.GenerateUniqueID(baseID(tag))
	case s.byID[id] != nil:
		newID := s.GenerateUniqueID(baseID(tag))
		s.recordIDChange(id, newID)
		s.logger.Debug("node id collision", "id", id, "new_id", newID)
		id = newID
	}
	if err := b.SetID(id); err != nil {
		return nil, err
	}
	if b.Name() == "" {
		b.SetName(s.GenerateUniqueName(tag))
	}
	if h, ok := n.(domain.Hierarchical); ok {
		if !h.HasSortingValue() {
			h.SetSortingValue(s.nextSortingValue())
		} else if h.SortingValue() > s.maxSortingValue {
			s.maxSortingValue = h.SortingValue()
		}
	}

	s.emit(domain.Event{Type: domain.EventNodeAboutToBeAdded, NodeID: id, Node: n})
	s.nodes = append(s.nodes, n)
	s.byID[id] = n
	b.AttachScene(s)
	for _, target := range b.ReferencedIDs() {
		s.refs.AddReference(target, id)
	}
	s.touch()
	s.emit(domain.Event{Type: domain.EventNodeAdded, NodeID: id, Node: n})
	return n, nil
}

// RemoveNode detaches n. Children of a removed hierarchy node are promoted
// to its former parent. Other nodes keep their references to n until
// UpdateReferences runs.
func (s *Scene) RemoveNode(n domain.Node) error {
	if n == nil || s.byID[n.ID()] != n {
		return domain.ErrNotInScene
	}
	id := n.ID()
	s.emit(domain.Event{Type: domain.EventNodeAboutToBeRemoved, NodeID: id, Node: n})
	if h, ok := n.(domain.Hierarchical); ok {
		s.hierarchy.promoteChildren(h)
	}
	for i, cur := range s.nodes {
		if cur == n {
			s.nodes = append(s.nodes[:i], s.nodes[i+1:]...)
			break
		}
	}
	delete(s.byID, id)
	s.refs.RemoveHolder(id)
	n.Base().DetachScene()
	s.touch()
	s.emit(domain.Event{Type: domain.EventNodeRemoved, NodeID: id, Node: n})
	return nil
}

// RemoveNodeByID removes the node with the given ID.
func (s *Scene) RemoveNodeByID(id string) error {
	n := s.NodeByID(id)
	if n == nil {
		return domain.NotFoundError{ID: id}
	}
	return s.RemoveNode(n)
}

// CopyNode adds a copy of n under a fresh ID and unique name.
func (s *Scene) CopyNode(n domain.Node) (domain.Node, error) {
	dup, err := s.newInstance(n.ClassTag())
	if err != nil {
		return nil, err
	}
	if err := dup.CopyContent(n); err != nil {
		return nil, err
	}
	dup.Base().SetSingletonTag("")
	dup.Base().SetName(s.GenerateUniqueName(n.Name()))
	return s.AddNode(dup)
}

// ResetNode restores constructor defaults, or the default node content when
// one applies, keeping ID, name, singleton tag, storage flags and the
// position among hierarchy siblings.
func (s *Scene) ResetNode(n domain.Node) error {
	fresh, err := s.CreateNode(n.ClassTag())
	if err != nil {
		return err
	}
	b := n.Base()
	name, tag := b.Name(), b.SingletonTag()
	save, hide, sel := b.SaveWithScene(), b.HideFromEditors(), b.Selectable()
	fb := fresh.Base()
	fb.SetName(name)
	fb.SetSingletonTag(tag)
	fb.SetSaveWithScene(save)
	fb.SetHideFromEditors(hide)
	fb.SetSelectable(sel)
	if h, ok := n.(domain.Hierarchical); ok && h.HasSortingValue() {
		fresh.(domain.Hierarchical).SetSortingValue(h.SortingValue())
	}
	return s.copyInto(n, fresh)
}

// copyInto overwrites dst with src content under one modified notification.
func (s *Scene) copyInto(dst, src domain.Node) error {
	b := dst.Base()
	b.StartModify()
	defer b.EndModify()
	if err := dst.CopyContent(src); err != nil {
		s.logger.Error("copy node content", "id", dst.ID(), "class", dst.ClassTag(), "err", err)
		return err
	}
	return nil
}

// cloneNode returns a detached deep copy of n that keeps n's ID.
func (s *Scene) cloneNode(n domain.Node) (domain.Node, error) {
	dup, err := s.newInstance(n.ClassTag())
	if err != nil {
		return nil, err
	}
	if err := dup.CopyContent(n); err != nil {
		return nil, err
	}
	if err := dup.Base().SetID(n.ID()); err != nil {
		return nil, err
	}
	return dup, nil
}

// NodeByID resolves id, or returns nil.
func (s *Scene) NodeByID(id string) domain.Node {
	if id == "" {
		return nil
	}
	return s.byID[id]
}

// IsNodePresent reports whether n is owned by the scene.
func (s *Scene) IsNodePresent(n domain.Node) bool {
	return n != nil && s.byID[n.ID()] == n
}

// NumberOfNodes is the size of the collection.
func (s *Scene) NumberOfNodes() int { return len(s.nodes) }

// Nodes returns the collection in traversal order.
func (s *Scene) Nodes() []domain.Node {
	return append([]domain.Node(nil), s.nodes...)
}

// NthNode returns the node at position i, or nil.
func (s *Scene) NthNode(i int) domain.Node {
	if i < 0 || i >= len(s.nodes) {
		return nil
	}
	return s.nodes[i]
}

// NodesByClass returns nodes whose class is tag or derives from tag.
func (s *Scene) NodesByClass(tag string) []domain.Node {
	var out []domain.Node
	for _, n := range s.nodes {
		if s.isA(n.ClassTag(), tag) {
			out = append(out, n)
		}
	}
	return out
}

// NumberOfNodesByClass counts NodesByClass without allocating.
func (s *Scene) NumberOfNodesByClass(tag string) int {
	count := 0
	for _, n := range s.nodes {
		if s.isA(n.ClassTag(), tag) {
			count++
		}
	}
	return count
}

// NthNodeByClass returns the i-th node of class tag, or nil.
func (s *Scene) NthNodeByClass(i int, tag string) domain.Node {
	for _, n := range s.nodes {
		if !s.isA(n.ClassTag(), tag) {
			continue
		}
		if i == 0 {
			return n
		}
		i--
	}
	return nil
}

// NodesByName returns every node named name.
func (s *Scene) NodesByName(name string) []domain.Node {
	var out []domain.Node
	for _, n := range s.nodes {
		if n.Name() == name {
			out = append(out, n)
		}
	}
	return out
}

// FirstNodeByName returns the first node named name, or nil.
func (s *Scene) FirstNodeByName(name string) domain.Node {
	for _, n := range s.nodes {
		if n.Name() == name {
			return n
		}
	}
	return nil
}

// SingletonNode returns the node of class tag carrying singletonTag.
func (s *Scene) SingletonNode(singletonTag, tag string) domain.Node {
	if singletonTag == "" {
		return nil
	}
	for _, n := range s.nodes {
		if n.ClassTag() == tag && n.Base().SingletonTag() == singletonTag {
			return n
		}
	}
	return nil
}

func (s *Scene) isA(class, tag string) bool {
	seen := 0
	for class != "" && seen <= len(s.classes) {
		if class == tag {
			return true
		}
		class = s.classes[class].Parent
		seen++
	}
	return false
}

func baseID(tag string) string { return tag + "Node" }

func (s *Scene) singletonID(tag, singletonTag string) string {
	id := baseID(tag) + singletonTag
	if s.idTaken(id) {
		return s.GenerateUniqueID(id)
	}
	return id
}

func indexed(base string, i int) string {
	if i == 0 {
		return base
	}
	return base + "_" + strconv.Itoa(i)
}

// GenerateUniqueID mints an ID from base that is not in use, not reserved
// and not held by an undo or redo capture. The bare base is tried first, then base_1, base_2 and so on,
// continuing after the last index issued for base.
func (s *Scene) GenerateUniqueID(base string) string {
	start, ok := s.idCounters[base]
	if ok {
		start++
	}
	for i := start; ; i++ {
		if cand := indexed(base, i); !s.idTaken(cand) {
			s.idCounters[base] = i
			return cand
		}
	}
}

// GenerateUniqueName mints a name from base that no node currently uses.
func (s *Scene) GenerateUniqueName(base string) string {
	start, ok := s.nameCounters[base]
	if ok {
		start++
	}
	for i := start; ; i++ {
		if cand := indexed(base, i); s.FirstNodeByName(cand) == nil {
			s.nameCounters[base] = i
			return cand
		}
	}
}

func (s *Scene) idTaken(id string) bool {
	if _, ok := s.byID[id]; ok {
		return true
	}
	if _, ok := s.reserved[id]; ok {
		return true
	}
	return s.undo != nil && s.undo.holdsID(id)
}

// ReserveIDs marks ids as unavailable to GenerateUniqueID.
func (s *Scene) ReserveIDs(ids ...string) {
	for _, id := range ids {
		if id != "" {
			s.reserved[id] = struct{}{}
		}
	}
}

// ReleaseIDs returns ids to the generator.
func (s *Scene) ReleaseIDs(ids ...string) {
	for _, id := range ids {
		delete(s.reserved, id)
	}
}

// IsIDReserved reports whether id is held back from generation.
func (s *Scene) IsIDReserved(id string) bool {
	_, ok := s.reserved[id]
	return ok
}

func (s *Scene) recordIDChange(oldID, newID string) {
	if _, ok := s.idChanges[oldID]; !ok {
		s.idChangeKeys = append(s.idChangeKeys, oldID)
	}
	s.idChanges[oldID] = newID
}

// ChangedID returns the ID an incoming node was given after a collision.
func (s *Scene) ChangedID(oldID string) (string, bool) {
	id, ok := s.idChanges[oldID]
	return id, ok
}

func (s *Scene) clearIDChanges() {
	s.idChanges = make(map[string]string)
	s.idChangeKeys = nil
}

func (s *Scene) nextSortingValue() float64 {
	s.maxSortingValue++
	return s.maxSortingValue
}

// ReferenceAdded implements domain.SceneLink.
func (s *Scene) ReferenceAdded(holderID, targetID string) {
	s.refs.AddReference(targetID, holderID)
}

// ReferenceRemoved implements domain.SceneLink.
func (s *Scene) ReferenceRemoved(holderID, targetID string) {
	s.refs.RemoveReference(targetID, holderID)
}

// NodeModified implements domain.SceneLink.
func (s *Scene) NodeModified(id string, modifiedTime uint64) {
	s.touch()
	s.emit(domain.Event{Type: domain.EventNodeModified, NodeID: id, Node: s.byID[id], ModifiedTime: modifiedTime})
}

// Subscribe registers l for every scene event and returns a cancel func.
func (s *Scene) Subscribe(l domain.Listener) func() {
	key := s.nextListener
	s.nextListener++
	s.listeners[key] = l
	s.listenerKeys = append(s.listenerKeys, key)
	return func() {
		delete(s.listeners, key)
		for i, k := range s.listenerKeys {
			if k == key {
				s.listenerKeys = append(s.listenerKeys[:i], s.listenerKeys[i+1:]...)
				break
			}
		}
	}
}

func (s *Scene) emit(ev domain.Event) {
	keys := append([]int(nil), s.listenerKeys...)
	for _, k := range keys {
		if l, ok := s.listeners[k]; ok {
			l(ev)
		}
	}
}
