// Package memory keeps scene bundles in process memory.
package memory

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"scenegraph/internal/blob/core"
)

type object struct {
	info core.Info
	data []byte
}

// Store is a core.Store backed by a map. Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	objects map[string]object
}

// New returns an empty store.
func New() *Store { return &Store{objects: make(map[string]object)} }

func (s *Store) Driver() core.Driver { return core.DriverMemory }

func (s *Store) Put(ctx context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	if err := ctx.Err(); err != nil {
		return core.Info{}, err
	}
	if strings.TrimSpace(key) == "" {
		return core.Info{}, fmt.Errorf("blob key is empty")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return core.Info{}, err
	}
	sum := sha256.Sum256(data)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; ok {
		return core.Info{}, fmt.Errorf("%w: %s", core.ErrExists, key)
	}
	info := core.Info{
		Key:          key,
		Size:         int64(len(data)),
		ContentType:  opts.ContentType,
		ETag:         hex.EncodeToString(sum[:]),
		Metadata:     core.CloneMetadata(opts.Metadata),
		LastModified: time.Now().UTC(),
	}
	s.objects[key] = object{info: info, data: data}
	return cloneInfo(info), nil
}

func (s *Store) Get(ctx context.Context, key string) (core.Info, io.ReadCloser, error) {
	obj, err := s.lookup(ctx, key)
	if err != nil {
		return core.Info{}, nil, err
	}
	return cloneInfo(obj.info), io.NopCloser(bytes.NewReader(bytes.Clone(obj.data))), nil
}

func (s *Store) Head(ctx context.Context, key string) (core.Info, error) {
	obj, err := s.lookup(ctx, key)
	if err != nil {
		return core.Info{}, err
	}
	return cloneInfo(obj.info), nil
}

func (s *Store) lookup(ctx context.Context, key string) (object, error) {
	if err := ctx.Err(); err != nil {
		return object{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return object{}, fmt.Errorf("%w: %s", core.ErrNotFound, key)
	}
	return obj, nil
}

func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	delete(s.objects, key)
	return ok, nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]core.Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Info, 0, len(s.objects))
	for key, obj := range s.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, cloneInfo(obj.info))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func cloneInfo(in core.Info) core.Info {
	in.Metadata = core.CloneMetadata(in.Metadata)
	return in
}
