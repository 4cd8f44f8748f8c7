package blob

import (
	"context"
	"fmt"
	"os"
	"strings"

	"scenegraph/internal/infra/blob/fs"
	"scenegraph/internal/infra/blob/memory"
	"scenegraph/internal/infra/blob/s3"
)

// S3Config is the bucket configuration for the s3 driver.
type S3Config = s3.Config

// Config selects and configures a backend.
type Config struct {
	Driver Driver   `toml:"driver" yaml:"driver"`
	FSRoot string   `toml:"fs_root" yaml:"fs_root"`
	S3     S3Config `toml:"s3" yaml:"s3"`
}

// Environment variables read by ConfigFromEnv.
const (
	EnvDriver      = "SCENEGRAPH_BLOB_DRIVER"
	EnvFSRoot      = "SCENEGRAPH_BLOB_FS_ROOT"
	EnvS3Bucket    = "SCENEGRAPH_BLOB_S3_BUCKET"
	EnvS3Prefix    = "SCENEGRAPH_BLOB_S3_PREFIX"
	EnvS3Region    = "SCENEGRAPH_BLOB_S3_REGION"
	EnvS3Endpoint  = "SCENEGRAPH_BLOB_S3_ENDPOINT"
	EnvS3PathStyle = "SCENEGRAPH_BLOB_S3_PATH_STYLE"
)

// ConfigFromEnv overlays environment variables onto base.
func ConfigFromEnv(base Config) Config {
	cfg := base
	if v := os.Getenv(EnvDriver); v != "" {
		cfg.Driver = Driver(strings.ToLower(v))
	}
	if v := os.Getenv(EnvFSRoot); v != "" {
		cfg.FSRoot = v
	}
	if v := os.Getenv(EnvS3Bucket); v != "" {
		cfg.S3.Bucket = v
	}
	if v := os.Getenv(EnvS3Prefix); v != "" {
		cfg.S3.Prefix = v
	}
	if v := os.Getenv(EnvS3Region); v != "" {
		cfg.S3.Region = v
	}
	if v := os.Getenv(EnvS3Endpoint); v != "" {
		cfg.S3.Endpoint = v
	}
	if v := os.Getenv(EnvS3PathStyle); v != "" {
		cfg.S3.PathStyle = strings.EqualFold(v, "true") || v == "1"
	}
	return cfg
}

// Open returns the backend named by cfg.Driver. An empty driver selects the
// filesystem backend rooted at ./bundles.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverFilesystem:
		root := cfg.FSRoot
		if root == "" {
			root = "./bundles"
		}
		return fs.New(root)
	case DriverMemory:
		return memory.New(), nil
	case DriverS3:
		return s3.New(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}

// NewMemory returns an in-memory store.
func NewMemory() Store { return memory.New() }

// NewMockS3 returns an s3 backed store over an in-process fake bucket.
func NewMockS3(ctx context.Context) (Store, error) { return s3.NewMock(ctx) }
