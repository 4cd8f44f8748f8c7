package domain

import (
	"fmt"

	"github.com/jinzhu/copier"
)

// ContentHolder is implemented by variants whose content lives in a plain
// struct that can be deep copied field by field.
type ContentHolder interface {
	Content() any
}

// SnapshotHolder is implemented by nodes that carry a stored copy of other
// nodes. Codecs nest the stored nodes under the holder's own record.
type SnapshotHolder interface {
	StoredNodes() []Node
	SetStoredNodes(nodes []Node) error
}

// NodeClass registers a variant with a scene factory registry. Parent names
// the class whose default node seeds this one when it has none of its own.
type NodeClass struct {
	Tag    string
	Parent string
	New    func() Node
}

// CopyNodeContent copies the shared state and the content struct of src
// into dst inside a single modify block. Content fields are matched by name,
// so compatible variants copy what they share.
func CopyNodeContent(dst, src Node) error {
	if src == nil || dst == nil {
		return nil
	}
	b := dst.Base()
	b.StartModify()
	defer b.EndModify()
	b.CopyBase(src.Base())
	if err := copyContentFields(dst, src, copier.Option{DeepCopy: true}); err != nil {
		return err
	}
	b.Modified()
	return nil
}

// ApplyDefaults seeds a freshly constructed dst from a default node. Fields
// the default leaves empty keep the constructor's values.
func ApplyDefaults(dst, def Node) error {
	if def == nil {
		return nil
	}
	dst.Base().mergeDefaults(def.Base())
	return copyContentFields(dst, def, copier.Option{DeepCopy: true, IgnoreEmpty: true})
}

func copyContentFields(dst, src Node, opt copier.Option) error {
	to, ok := dst.(ContentHolder)
	if !ok {
		return nil
	}
	from, ok := src.(ContentHolder)
	if !ok {
		return nil
	}
	if err := copier.CopyWithOption(to.Content(), from.Content(), opt); err != nil {
		return fmt.Errorf("copy %s content into %s: %w", src.ClassTag(), dst.ClassTag(), err)
	}
	return nil
}
