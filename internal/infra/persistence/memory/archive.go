// Package memory provides a process-local scene archive.
package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"scenegraph/pkg/domain"
)

var _ domain.SceneArchive = (*Archive)(nil)

// Archive keeps records in a map. Payloads are copied on the way in and out.
type Archive struct {
	mu      sync.RWMutex
	records map[string]domain.SceneRecord
}

// NewArchive returns an empty archive.
func NewArchive() *Archive {
	return &Archive{records: make(map[string]domain.SceneRecord)}
}

// Save stores rec under rec.Name, replacing any previous revision.
func (a *Archive) Save(ctx context.Context, rec domain.SceneRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec.Payload = bytes.Clone(rec.Payload)
	a.mu.Lock()
	a.records[rec.Name] = rec
	a.mu.Unlock()
	return nil
}

// Load returns the record stored under name.
func (a *Archive) Load(ctx context.Context, name string) (domain.SceneRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.SceneRecord{}, err
	}
	a.mu.RLock()
	rec, ok := a.records[name]
	a.mu.RUnlock()
	if !ok {
		return domain.SceneRecord{}, domain.ErrSceneNotArchived{Name: name}
	}
	rec.Payload = bytes.Clone(rec.Payload)
	return rec, nil
}

// List returns every record without its payload, ordered by name.
func (a *Archive) List(ctx context.Context) ([]domain.SceneRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.RLock()
	out := make([]domain.SceneRecord, 0, len(a.records))
	for _, rec := range a.records {
		rec.Payload = nil
		out = append(out, rec)
	}
	a.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Delete removes name and reports whether it was archived.
func (a *Archive) Delete(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.records[name]
	delete(a.records, name)
	return ok, nil
}

func (a *Archive) Close() error { return nil }
