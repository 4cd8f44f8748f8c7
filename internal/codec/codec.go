// Package codec reads and writes the textual scene format: a Scene root
// element holding one element per node, named by the node's class tag, with
// the node's shared and variant attributes as XML attributes. Nodes that
// carry stored copies of other nodes nest them as child elements.
package codec

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"

	"scenegraph/pkg/domain"
)

const (
	rootElement = "Scene"
	// FormatVersion is written on the root element.
	FormatVersion = "1"
)

// ErrMalformed is returned when the input is not a serialized scene.
var ErrMalformed = errors.New("malformed scene document")

// Factory creates detached nodes by class tag.
type Factory interface {
	CreateNode(tag string) (domain.Node, error)
}

// Encode writes nodes in order. Nodes flagged as not saved with the scene
// are skipped.
func Encode(w io.Writer, nodes []domain.Node) error {
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	root := xml.StartElement{
		Name: xml.Name{Local: rootElement},
		Attr: []xml.Attr{{Name: xml.Name{Local: "version"}, Value: FormatVersion}},
	}
	if err := enc.EncodeToken(root); err != nil {
		return err
	}
	for _, n := range nodes {
		if !n.Base().SaveWithScene() {
			continue
		}
		if err := encodeNode(enc, n); err != nil {
			return fmt.Errorf("encode %s: %w", n.ID(), err)
		}
	}
	if err := enc.EncodeToken(root.End()); err != nil {
		return err
	}
	return enc.Flush()
}

func encodeNode(enc *xml.Encoder, n domain.Node) error {
	var w domain.AttributeWriter
	n.Base().WriteBaseAttributes(&w)
	n.WriteAttributes(&w)
	start := xml.StartElement{Name: xml.Name{Local: n.ClassTag()}}
	for _, a := range w.Attrs() {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: a.Name}, Value: a.Value})
	}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	if holder, ok := n.(domain.SnapshotHolder); ok {
		for _, stored := range holder.StoredNodes() {
			if err := encodeNode(enc, stored); err != nil {
				return err
			}
		}
	}
	return enc.EncodeToken(start.End())
}

// Decode reads a serialized scene and returns detached nodes in document
// order. Unknown attributes are ignored; unknown class tags fail with
// domain.ErrUnknownClass.
func Decode(r io.Reader, f Factory) ([]domain.Node, error) {
	dec := xml.NewDecoder(r)
	root, err := nextStart(dec)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrMalformed)
		}
		return nil, err
	}
	if root.Name.Local != rootElement {
		return nil, fmt.Errorf("%w: root element %q", ErrMalformed, root.Name.Local)
	}
	return decodeChildren(dec, f)
}

// decodeChildren decodes sibling node elements up to the enclosing end tag.
func decodeChildren(dec *xml.Decoder, f Factory) ([]domain.Node, error) {
	var nodes []domain.Node
	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("%w: unexpected end of document", ErrMalformed)
			}
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n, err := decodeNode(dec, f, t)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, n)
		case xml.EndElement:
			return nodes, nil
		}
	}
}

func decodeNode(dec *xml.Decoder, f Factory, start xml.StartElement) (domain.Node, error) {
	n, err := f.CreateNode(start.Name.Local)
	if err != nil {
		return nil, err
	}
	attrs := make(map[string]string, len(start.Attr))
	for _, a := range start.Attr {
		attrs[a.Name.Local] = a.Value
	}
	if err := n.Base().ReadBaseAttributes(attrs); err != nil {
		return nil, fmt.Errorf("%s %s: %w", start.Name.Local, attrs["id"], err)
	}
	if err := n.ReadAttributes(attrs); err != nil {
		return nil, fmt.Errorf("%s %s: %w", start.Name.Local, attrs["id"], err)
	}
	stored, err := decodeChildren(dec, f)
	if err != nil {
		return nil, err
	}
	if holder, ok := n.(domain.SnapshotHolder); ok && len(stored) > 0 {
		if err := holder.SetStoredNodes(stored); err != nil {
			return nil, err
		}
	}
	return n, nil
}

func nextStart(dec *xml.Decoder) (xml.StartElement, error) {
	for {
		tok, err := dec.Token()
		if err != nil {
			return xml.StartElement{}, err
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start, nil
		}
	}
}
