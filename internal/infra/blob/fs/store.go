// Package fs stores scene bundles as plain files under a root directory. Each
// bundle has a sidecar JSON file holding its content type, checksum and user
// metadata.
package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"scenegraph/internal/blob/core"
)

const sidecarSuffix = ".meta.json"

// Store is a core.Store on the local filesystem.
type Store struct {
	root string
	now  func() time.Time
}

// New opens a store rooted at root, creating the directory when missing.
func New(root string) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("blob root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &Store{root: root, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *Store) Driver() core.Driver { return core.DriverFilesystem }

type sidecar struct {
	ContentType string            `json:"content_type,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	SHA256      string            `json:"sha256"`
	Size        int64             `json:"size"`
	WrittenAt   time.Time         `json:"written_at"`
}

func (m sidecar) info(key string) core.Info {
	return core.Info{
		Key:          key,
		Size:         m.Size,
		ContentType:  m.ContentType,
		ETag:         m.SHA256,
		Metadata:     core.CloneMetadata(m.Metadata),
		LastModified: m.WrittenAt,
	}
}

// resolve maps key to the data file path, rejecting keys that would escape
// the root.
func (s *Store) resolve(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", errors.New("blob key is empty")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
		return "", fmt.Errorf("blob key %q escapes the store root", key)
	}
	if strings.HasSuffix(key, sidecarSuffix) {
		return "", fmt.Errorf("blob key %q uses a reserved suffix", key)
	}
	return filepath.Join(s.root, filepath.FromSlash(filepath.ToSlash(filepath.Clean(key)))), nil
}

func (s *Store) Put(ctx context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	if err := ctx.Err(); err != nil {
		return core.Info{}, err
	}
	path, err := s.resolve(key)
	if err != nil {
		return core.Info{}, err
	}
	if _, err := os.Stat(path); err == nil {
		return core.Info{}, fmt.Errorf("%w: %s", core.ErrExists, key)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return core.Info{}, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return core.Info{}, err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	sum := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, sum), r)
	if err == nil {
		err = tmp.Close()
	} else {
		_ = tmp.Close()
	}
	if err != nil {
		return core.Info{}, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return core.Info{}, err
	}
	meta := sidecar{
		ContentType: opts.ContentType,
		Metadata:    core.CloneMetadata(opts.Metadata),
		SHA256:      hex.EncodeToString(sum.Sum(nil)),
		Size:        size,
		WrittenAt:   s.now(),
	}
	raw, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return core.Info{}, err
	}
	if err := os.WriteFile(path+sidecarSuffix, raw, 0o644); err != nil {
		return core.Info{}, err
	}
	return meta.info(key), nil
}

func (s *Store) Get(ctx context.Context, key string) (core.Info, io.ReadCloser, error) {
	info, err := s.Head(ctx, key)
	if err != nil {
		return core.Info{}, nil, err
	}
	path, _ := s.resolve(key)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return core.Info{}, nil, fmt.Errorf("%w: %s", core.ErrNotFound, key)
		}
		return core.Info{}, nil, err
	}
	return info, f, nil
}

func (s *Store) Head(ctx context.Context, key string) (core.Info, error) {
	if err := ctx.Err(); err != nil {
		return core.Info{}, err
	}
	path, err := s.resolve(key)
	if err != nil {
		return core.Info{}, err
	}
	meta, err := readSidecar(path + sidecarSuffix)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return core.Info{}, fmt.Errorf("%w: %s", core.ErrNotFound, key)
		}
		return core.Info{}, err
	}
	return meta.info(key), nil
}

func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	path, err := s.resolve(key)
	if err != nil {
		return false, err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	_ = os.Remove(path + sidecarSuffix)
	return true, nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]core.Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []core.Info
	err := filepath.WalkDir(s.root, func(path string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, sidecarSuffix) {
			return nil
		}
		rel, err := filepath.Rel(s.root, strings.TrimSuffix(path, sidecarSuffix))
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		meta, err := readSidecar(path)
		if err != nil {
			return err
		}
		out = append(out, meta.info(key))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func readSidecar(path string) (sidecar, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return sidecar{}, err
	}
	var meta sidecar
	if err := json.Unmarshal(raw, &meta); err != nil {
		return sidecar{}, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return meta, nil
}
