package domain

import (
	"sort"
	"strings"
)

// Node is the capability interface every scene node variant implements.
// Variants embed NodeBase, which supplies identity, attributes, reference
// slots and the modification clock.
type Node interface {
	Base() *NodeBase
	ID() string
	Name() string
	// ClassTag is the serialization tag used for factory lookup.
	ClassTag() string
	// CopyContent copies everything but the ID from src.
	CopyContent(src Node) error
	WriteAttributes(w *AttributeWriter)
	ReadAttributes(attrs map[string]string) error
	// OnReferenceRemoved is invoked when a referenced node no longer exists.
	OnReferenceRemoved(targetID string)
}

// SceneLink is the owning scene as seen from an attached node.
type SceneLink interface {
	ReferenceAdded(holderID, targetID string)
	ReferenceRemoved(holderID, targetID string)
	NodeModified(id string, modifiedTime uint64)
}

// NodeBase carries the state shared by all node variants. The zero value is
// not ready for use; variants start from NewNodeBase.
type NodeBase struct {
	id              string
	name            string
	description     string
	singletonTag    string
	hideFromEditors bool
	selectable      bool
	selected        bool
	saveWithScene   bool
	undoEnabled     bool

	attributes map[string]string
	roles      []string
	references map[string][]string

	mtime        uint64
	modifyDepth  int
	modifyQueued bool
	link         SceneLink
}

// NewNodeBase returns a base with the constructor defaults applied.
func NewNodeBase() NodeBase {
	return NodeBase{
		selectable:    true,
		saveWithScene: true,
		undoEnabled:   true,
		attributes:    make(map[string]string),
		references:    make(map[string][]string),
	}
}

func (b *NodeBase) Base() *NodeBase { return b }

func (b *NodeBase) ID() string { return b.id }

// SetID assigns the node identifier. IDs are immutable once the node is
// attached to a scene.
func (b *NodeBase) SetID(id string) error {
	if b.link != nil && id != b.id {
		return ErrNodeAttached
	}
	b.id = id
	return nil
}

func (b *NodeBase) Name() string { return b.name }

func (b *NodeBase) SetName(name string) {
	if b.name == name {
		return
	}
	b.name = name
	b.Modified()
}

func (b *NodeBase) Description() string { return b.description }

func (b *NodeBase) SetDescription(desc string) {
	if b.description == desc {
		return
	}
	b.description = desc
	b.Modified()
}

func (b *NodeBase) SingletonTag() string { return b.singletonTag }

func (b *NodeBase) SetSingletonTag(tag string) {
	if b.singletonTag == tag {
		return
	}
	b.singletonTag = tag
	b.Modified()
}

func (b *NodeBase) HideFromEditors() bool { return b.hideFromEditors }

func (b *NodeBase) SetHideFromEditors(v bool) {
	if b.hideFromEditors == v {
		return
	}
	b.hideFromEditors = v
	b.Modified()
}

func (b *NodeBase) Selectable() bool { return b.selectable }

func (b *NodeBase) SetSelectable(v bool) {
	if b.selectable == v {
		return
	}
	b.selectable = v
	b.Modified()
}

func (b *NodeBase) Selected() bool { return b.selected }

func (b *NodeBase) SetSelected(v bool) {
	if b.selected == v {
		return
	}
	b.selected = v
	b.Modified()
}

func (b *NodeBase) SaveWithScene() bool { return b.saveWithScene }

func (b *NodeBase) SetSaveWithScene(v bool) {
	if b.saveWithScene == v {
		return
	}
	b.saveWithScene = v
	b.Modified()
}

func (b *NodeBase) UndoEnabled() bool { return b.undoEnabled }

func (b *NodeBase) SetUndoEnabled(v bool) {
	if b.undoEnabled == v {
		return
	}
	b.undoEnabled = v
	b.Modified()
}

// Attribute returns the value stored under name, or "" when unset.
func (b *NodeBase) Attribute(name string) string { return b.attributes[name] }

// SetAttribute stores a free-form attribute. An empty value removes it.
func (b *NodeBase) SetAttribute(name, value string) {
	if name == "" {
		return
	}
	old, ok := b.attributes[name]
	if value == "" {
		if !ok {
			return
		}
		delete(b.attributes, name)
		b.Modified()
		return
	}
	if ok && old == value {
		return
	}
	if b.attributes == nil {
		b.attributes = make(map[string]string)
	}
	b.attributes[name] = value
	b.Modified()
}

// AttributeNames lists attribute keys in ascending order.
func (b *NodeBase) AttributeNames() []string {
	names := make([]string, 0, len(b.attributes))
	for k := range b.attributes {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// ModifiedTime is the node's modification clock.
func (b *NodeBase) ModifiedTime() uint64 { return b.mtime }

// Modified bumps the modification clock and, unless a modify block is open,
// notifies the owning scene.
func (b *NodeBase) Modified() {
	b.mtime++
	if b.modifyDepth > 0 {
		b.modifyQueued = true
		return
	}
	if b.link != nil {
		b.link.NodeModified(b.id, b.mtime)
	}
}

// StartModify opens a block during which modified notifications coalesce
// into a single one delivered by the matching EndModify.
func (b *NodeBase) StartModify() {
	b.modifyDepth++
}

func (b *NodeBase) EndModify() {
	if b.modifyDepth == 0 {
		return
	}
	b.modifyDepth--
	if b.modifyDepth == 0 && b.modifyQueued {
		b.modifyQueued = false
		if b.link != nil {
			b.link.NodeModified(b.id, b.mtime)
		}
	}
}

// Modify runs fn inside a modify block and marks the node modified once.
// Exported content fields of a variant are meant to be changed this way.
func (b *NodeBase) Modify(fn func()) {
	b.StartModify()
	fn()
	b.Modified()
	b.EndModify()
}

// AttachScene links the node to its owning scene.
func (b *NodeBase) AttachScene(link SceneLink) { b.link = link }

// DetachScene drops the link to the owning scene.
func (b *NodeBase) DetachScene() { b.link = nil }

// InScene reports whether the node is attached to a scene.
func (b *NodeBase) InScene() bool { return b.link != nil }

// NodeReferenceID returns the first ID held under role.
func (b *NodeBase) NodeReferenceID(role string) string {
	ids := b.references[role]
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}

// NodeReferenceIDs returns a copy of the IDs held under role.
func (b *NodeBase) NodeReferenceIDs(role string) []string {
	return append([]string(nil), b.references[role]...)
}

// ReferenceRoles lists roles in first-use order.
func (b *NodeBase) ReferenceRoles() []string {
	out := make([]string, 0, len(b.roles))
	for _, r := range b.roles {
		if len(b.references[r]) > 0 {
			out = append(out, r)
		}
	}
	return out
}

// ReferencedIDs returns every distinct referenced ID in role order.
func (b *NodeBase) ReferencedIDs() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range b.roles {
		for _, id := range b.references[r] {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// References returns a deep copy of the reference slots.
func (b *NodeBase) References() map[string][]string {
	out := make(map[string][]string, len(b.references))
	for r, ids := range b.references {
		if len(ids) > 0 {
			out[r] = append([]string(nil), ids...)
		}
	}
	return out
}

// HasReferenceTo reports whether any slot holds id.
func (b *NodeBase) HasReferenceTo(id string) bool {
	for _, ids := range b.references {
		for _, v := range ids {
			if v == id {
				return true
			}
		}
	}
	return false
}

// SetNodeReferenceID replaces the IDs under role with id. An empty id clears
// the role.
func (b *NodeBase) SetNodeReferenceID(role, id string) {
	if role == "" {
		return
	}
	cur := b.references[role]
	if id == "" && len(cur) == 0 {
		return
	}
	if len(cur) == 1 && cur[0] == id {
		return
	}
	b.rewriteReferences(func(refs map[string][]string) {
		if id == "" {
			delete(refs, role)
			return
		}
		refs[role] = []string{id}
	}, role)
}

// AddNodeReferenceID appends id to role.
func (b *NodeBase) AddNodeReferenceID(role, id string) {
	if role == "" || id == "" {
		return
	}
	b.rewriteReferences(func(refs map[string][]string) {
		refs[role] = append(refs[role], id)
	}, role)
}

// RemoveNodeReferenceIDs clears every ID held under role.
func (b *NodeBase) RemoveNodeReferenceIDs(role string) {
	if len(b.references[role]) == 0 {
		return
	}
	b.rewriteReferences(func(refs map[string][]string) {
		delete(refs, role)
	})
}

// RemoveReferencesTo drops id from every role.
func (b *NodeBase) RemoveReferencesTo(id string) {
	if !b.HasReferenceTo(id) {
		return
	}
	b.rewriteReferences(func(refs map[string][]string) {
		for r, ids := range refs {
			kept := ids[:0]
			for _, v := range ids {
				if v != id {
					kept = append(kept, v)
				}
			}
			if len(kept) == 0 {
				delete(refs, r)
				continue
			}
			refs[r] = kept
		}
	})
}

// UpdateReferenceID rewrites oldID to newID in every role.
func (b *NodeBase) UpdateReferenceID(oldID, newID string) {
	if oldID == newID || !b.HasReferenceTo(oldID) {
		return
	}
	b.rewriteReferences(func(refs map[string][]string) {
		for r, ids := range refs {
			for i, v := range ids {
				if v == oldID {
					ids[i] = newID
				}
			}
			refs[r] = ids
		}
	})
}

// OnReferenceRemoved clears the dangling ID from every slot.
func (b *NodeBase) OnReferenceRemoved(targetID string) {
	b.RemoveReferencesTo(targetID)
}

// rewriteReferences applies fn to a private copy of the slots, swaps it in
// and reports the difference in referenced IDs to the owning scene.
func (b *NodeBase) rewriteReferences(fn func(map[string][]string), newRoles ...string) {
	before := b.ReferencedIDs()
	next := b.References()
	fn(next)
	for _, r := range newRoles {
		b.noteRole(r)
	}
	b.references = next
	after := b.ReferencedIDs()
	b.notifyReferenceDiff(before, after)
	b.Modified()
}

func (b *NodeBase) ensureMaps() {
	if b.attributes == nil {
		b.attributes = make(map[string]string)
	}
	if b.references == nil {
		b.references = make(map[string][]string)
	}
}

func (b *NodeBase) noteRole(role string) {
	for _, r := range b.roles {
		if r == role {
			return
		}
	}
	b.roles = append(b.roles, role)
}

func (b *NodeBase) notifyReferenceDiff(before, after []string) {
	if b.link == nil {
		return
	}
	inAfter := make(map[string]struct{}, len(after))
	for _, id := range after {
		inAfter[id] = struct{}{}
	}
	inBefore := make(map[string]struct{}, len(before))
	for _, id := range before {
		inBefore[id] = struct{}{}
		if _, ok := inAfter[id]; !ok {
			b.link.ReferenceRemoved(b.id, id)
		}
	}
	for _, id := range after {
		if _, ok := inBefore[id]; !ok {
			b.link.ReferenceAdded(b.id, id)
		}
	}
}

// CopyBase copies the shared node state from src. The ID is never copied,
// and an empty name or singleton tag on src leaves the current one intact.
func (b *NodeBase) CopyBase(src *NodeBase) {
	if src == nil || src == b {
		return
	}
	b.StartModify()
	defer b.EndModify()
	if src.name != "" {
		b.SetName(src.name)
	}
	if src.singletonTag != "" {
		b.SetSingletonTag(src.singletonTag)
	}
	b.SetDescription(src.description)
	b.SetHideFromEditors(src.hideFromEditors)
	b.SetSelectable(src.selectable)
	b.SetSaveWithScene(src.saveWithScene)
	b.SetUndoEnabled(src.undoEnabled)
	b.attributes = make(map[string]string, len(src.attributes))
	for k, v := range src.attributes {
		b.attributes[k] = v
	}
	b.copyReferences(src)
	b.Modified()
}

func (b *NodeBase) copyReferences(src *NodeBase) {
	roles := append([]string(nil), src.roles...)
	b.rewriteReferences(func(refs map[string][]string) {
		for r := range refs {
			delete(refs, r)
		}
		for r, ids := range src.references {
			if len(ids) > 0 {
				refs[r] = append([]string(nil), ids...)
			}
		}
	}, roles...)
}

// mergeDefaults overlays the non-empty shared state of a default node.
func (b *NodeBase) mergeDefaults(def *NodeBase) {
	b.ensureMaps()
	if def.description != "" {
		b.description = def.description
	}
	if def.hideFromEditors {
		b.hideFromEditors = true
	}
	for k, v := range def.attributes {
		b.attributes[k] = v
	}
}

// WriteBaseAttributes emits the shared attributes in serialization order.
func (b *NodeBase) WriteBaseAttributes(w *AttributeWriter) {
	w.String("id", b.id)
	w.String("name", b.name)
	if b.description != "" {
		w.String("description", b.description)
	}
	w.Bool("hideFromEditors", b.hideFromEditors)
	w.Bool("selectable", b.selectable)
	w.Bool("selected", b.selected)
	if b.singletonTag != "" {
		w.String("singletonTag", b.singletonTag)
	}
	if len(b.attributes) > 0 {
		parts := make([]string, 0, len(b.attributes))
		for _, k := range b.AttributeNames() {
			parts = append(parts, k+":"+b.attributes[k])
		}
		w.String("attributes", strings.Join(parts, ";"))
	}
	if roles := b.ReferenceRoles(); len(roles) > 0 {
		var sb strings.Builder
		for _, r := range roles {
			sb.WriteString(r)
			sb.WriteString(":")
			sb.WriteString(strings.Join(b.references[r], " "))
			sb.WriteString(";")
		}
		w.String("references", sb.String())
	}
}

// ReadBaseAttributes restores the shared attributes. It must be called
// before the node is attached to a scene.
func (b *NodeBase) ReadBaseAttributes(attrs map[string]string) error {
	b.ensureMaps()
	if v, ok := attrs["id"]; ok {
		if err := b.SetID(v); err != nil {
			return err
		}
	}
	if v, ok := attrs["name"]; ok {
		b.name = v
	}
	if v, ok := attrs["description"]; ok {
		b.description = v
	}
	if v, ok := attrs["singletonTag"]; ok {
		b.singletonTag = v
	}
	var err error
	if b.hideFromEditors, err = boolAttr(attrs, "hideFromEditors", b.hideFromEditors); err != nil {
		return err
	}
	if b.selectable, err = boolAttr(attrs, "selectable", b.selectable); err != nil {
		return err
	}
	if b.selected, err = boolAttr(attrs, "selected", b.selected); err != nil {
		return err
	}
	if v, ok := attrs["attributes"]; ok && v != "" {
		for _, pair := range strings.Split(v, ";") {
			k, val, found := strings.Cut(pair, ":")
			if !found || k == "" {
				continue
			}
			b.attributes[k] = val
		}
	}
	if v, ok := attrs["references"]; ok && v != "" {
		for _, entry := range strings.Split(v, ";") {
			role, ids, found := strings.Cut(entry, ":")
			if !found || role == "" {
				continue
			}
			for _, id := range strings.Fields(ids) {
				b.noteRole(role)
				b.references[role] = append(b.references[role], id)
			}
		}
	}
	return nil
}
