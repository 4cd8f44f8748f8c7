package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Attr is one serialized name/value pair.
type Attr struct {
	Name  string
	Value string
}

// AttributeWriter collects serialized attributes in emission order.
type AttributeWriter struct {
	attrs []Attr
}

func (w *AttributeWriter) String(name, value string) {
	w.attrs = append(w.attrs, Attr{Name: name, Value: value})
}

func (w *AttributeWriter) Bool(name string, v bool) {
	w.String(name, strconv.FormatBool(v))
}

func (w *AttributeWriter) Int(name string, v int) {
	w.String(name, strconv.Itoa(v))
}

func (w *AttributeWriter) Float(name string, v float64) {
	w.String(name, strconv.FormatFloat(v, 'g', -1, 64))
}

// Floats writes a space separated vector.
func (w *AttributeWriter) Floats(name string, v []float64) {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = strconv.FormatFloat(f, 'g', -1, 64)
	}
	w.String(name, strings.Join(parts, " "))
}

// Attrs returns the collected pairs.
func (w *AttributeWriter) Attrs() []Attr {
	return append([]Attr(nil), w.attrs...)
}

// Map returns the collected pairs keyed by name; later pairs win.
func (w *AttributeWriter) Map() map[string]string {
	out := make(map[string]string, len(w.attrs))
	for _, a := range w.attrs {
		out[a.Name] = a.Value
	}
	return out
}

func boolAttr(attrs map[string]string, name string, fallback bool) (bool, error) {
	v, ok := attrs[name]
	if !ok || v == "" {
		return fallback, nil
	}
	switch v {
	case "1":
		return true, nil
	case "0":
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback, fmt.Errorf("attribute %s: %w", name, err)
	}
	return b, nil
}

func floatAttr(attrs map[string]string, name string, fallback float64) (float64, error) {
	v, ok := attrs[name]
	if !ok || v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback, fmt.Errorf("attribute %s: %w", name, err)
	}
	return f, nil
}

// vectorAttr parses exactly len(dst) space separated floats into dst.
func vectorAttr(attrs map[string]string, name string, dst []float64) error {
	v, ok := attrs[name]
	if !ok || v == "" {
		return nil
	}
	fields := strings.Fields(v)
	if len(fields) != len(dst) {
		return fmt.Errorf("attribute %s: want %d values, got %d", name, len(dst), len(fields))
	}
	for i, f := range fields {
		parsed, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return fmt.Errorf("attribute %s: %w", name, err)
		}
		dst[i] = parsed
	}
	return nil
}
