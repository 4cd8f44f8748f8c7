// Package core holds the blob store contract shared by the blob facade and
// its backends.
package core

import (
	"context"
	"errors"
	"io"
	"time"
)

// Driver names a blob backend.
type Driver string

const (
	DriverFilesystem Driver = "fs"
	DriverS3         Driver = "s3"
	DriverMemory     Driver = "memory"
)

var (
	// ErrExists is returned by Put when the key is already taken.
	ErrExists = errors.New("blob already exists")
	// ErrNotFound is returned by Get and Head for unknown keys.
	ErrNotFound = errors.New("blob not found")
)

// PutOptions carries optional object metadata.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// Info describes a stored object.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
}

// Store is a create-only object store keyed by slash separated paths.
type Store interface {
	// Put writes a new object and fails with ErrExists when key is taken.
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Head(ctx context.Context, key string) (Info, error)
	// Delete reports whether the key existed.
	Delete(ctx context.Context, key string) (bool, error)
	// List returns objects under prefix ordered by key.
	List(ctx context.Context, prefix string) ([]Info, error)
	Driver() Driver
}

// CloneMetadata copies a metadata map; nil stays nil.
func CloneMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
