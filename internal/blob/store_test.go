package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
)

func openDrivers(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()
	fsStore, err := Open(ctx, Config{Driver: DriverFilesystem, FSRoot: t.TempDir()})
	if err != nil {
		t.Fatalf("open fs: %v", err)
	}
	s3Store, err := NewMockS3(ctx)
	if err != nil {
		t.Fatalf("open mock s3: %v", err)
	}
	return map[string]Store{
		"memory": NewMemory(),
		"fs":     fsStore,
		"s3":     s3Store,
	}
}

func TestStoreContract(t *testing.T) {
	for name, store := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			payload := []byte(`<Scene version="1"></Scene>`)
			info, err := store.Put(ctx, "scenes/a.xml", bytes.NewReader(payload), PutOptions{
				ContentType: "application/xml",
				Metadata:    map[string]string{"scene-uid": "abc"},
			})
			if err != nil {
				t.Fatalf("put: %v", err)
			}
			if info.Size != int64(len(payload)) {
				t.Fatalf("expected size %d, got %d", len(payload), info.Size)
			}
			if _, err := store.Put(ctx, "scenes/a.xml", bytes.NewReader(payload), PutOptions{}); !errors.Is(err, ErrExists) {
				t.Fatalf("expected ErrExists on duplicate put, got %v", err)
			}

			got, rc, err := store.Get(ctx, "scenes/a.xml")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			body, err := io.ReadAll(rc)
			_ = rc.Close()
			if err != nil {
				t.Fatalf("read body: %v", err)
			}
			if !bytes.Equal(body, payload) {
				t.Fatalf("unexpected body %q", body)
			}
			if got.ContentType != "application/xml" {
				t.Fatalf("expected content type to round trip, got %q", got.ContentType)
			}
			if got.Metadata["scene-uid"] != "abc" {
				t.Fatalf("expected metadata to round trip, got %v", got.Metadata)
			}

			if _, err := store.Put(ctx, "scenes/b.xml", bytes.NewReader(payload), PutOptions{}); err != nil {
				t.Fatalf("put b: %v", err)
			}
			if _, err := store.Put(ctx, "other/c.xml", bytes.NewReader(payload), PutOptions{}); err != nil {
				t.Fatalf("put c: %v", err)
			}
			list, err := store.List(ctx, "scenes/")
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(list) != 2 || list[0].Key != "scenes/a.xml" || list[1].Key != "scenes/b.xml" {
				t.Fatalf("unexpected listing %+v", list)
			}

			existed, err := store.Delete(ctx, "scenes/a.xml")
			if err != nil || !existed {
				t.Fatalf("expected delete to report existing key, got %v %v", existed, err)
			}
			existed, err = store.Delete(ctx, "scenes/a.xml")
			if err != nil || existed {
				t.Fatalf("expected second delete to report missing key, got %v %v", existed, err)
			}
			if _, err := store.Head(ctx, "scenes/a.xml"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound after delete, got %v", err)
			}
		})
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), Config{Driver: "tape"}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestFilesystemRejectsEscapingKeys(t *testing.T) {
	store, err := Open(context.Background(), Config{Driver: DriverFilesystem, FSRoot: t.TempDir()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for _, key := range []string{"", "../x", "/abs", "a.xml.meta.json"} {
		if _, err := store.Put(context.Background(), key, bytes.NewReader(nil), PutOptions{}); err == nil {
			t.Fatalf("expected key %q to be rejected", key)
		}
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv(EnvDriver, "S3")
	t.Setenv(EnvS3Bucket, "bundles")
	t.Setenv(EnvS3PathStyle, "true")
	cfg := ConfigFromEnv(Config{FSRoot: "/data"})
	if cfg.Driver != DriverS3 || cfg.S3.Bucket != "bundles" || !cfg.S3.PathStyle {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.FSRoot != "/data" {
		t.Fatalf("expected base values to survive, got %q", cfg.FSRoot)
	}
}
