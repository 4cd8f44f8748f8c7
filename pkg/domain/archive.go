package domain

import (
	"context"
	"time"
)

// SceneRecord is one archived, serialized scene.
type SceneRecord struct {
	Name      string    `json:"name"`
	Revision  string    `json:"revision"`
	NodeCount int       `json:"node_count"`
	SavedAt   time.Time `json:"saved_at"`
	Payload   []byte    `json:"payload,omitempty"`
}

// SceneArchive persists serialized scenes by name. Saving an existing name
// replaces the previous revision.
type SceneArchive interface {
	Save(ctx context.Context, rec SceneRecord) error
	Load(ctx context.Context, name string) (SceneRecord, error)
	// List returns records without payloads, ordered by name.
	List(ctx context.Context) ([]SceneRecord, error)
	// Delete returns (false, nil) when name is not archived.
	Delete(ctx context.Context, name string) (bool, error)
	Close() error
}

// ErrSceneNotArchived wraps lookups of unknown archive names.
type ErrSceneNotArchived struct {
	Name string
}

func (e ErrSceneNotArchived) Error() string {
	return "scene " + e.Name + " not archived"
}
