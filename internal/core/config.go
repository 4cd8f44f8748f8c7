package core

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"scenegraph/internal/blob"
)

// Config is the process level configuration shared by the CLI and the API.
type Config struct {
	UndoEnabled   bool          `toml:"undo_enabled" yaml:"undo_enabled"`
	UndoMaxDepth  int           `toml:"undo_max_depth" yaml:"undo_max_depth"`
	ArchiveDriver StorageDriver `toml:"archive_driver" yaml:"archive_driver"`
	SQLitePath    string        `toml:"sqlite_path" yaml:"sqlite_path"`
	PostgresDSN   string        `toml:"postgres_dsn" yaml:"postgres_dsn"`
	Blob          blob.Config   `toml:"blob" yaml:"blob"`
	APIAddr       string        `toml:"api_addr" yaml:"api_addr"`
}

// Environment overrides applied by LoadConfig. Blob settings use the
// SCENEGRAPH_BLOB_* variables read by blob.ConfigFromEnv.
const (
	EnvArchiveDriver = "SCENEGRAPH_ARCHIVE_DRIVER"
	EnvSQLitePath    = "SCENEGRAPH_SQLITE_PATH"
	EnvPostgresDSN   = "SCENEGRAPH_POSTGRES_DSN"
	EnvUndoDepth     = "SCENEGRAPH_UNDO_DEPTH"
	EnvUndoEnabled   = "SCENEGRAPH_UNDO_ENABLED"
	EnvAPIAddr       = "SCENEGRAPH_API_ADDR"
)

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		UndoEnabled:   true,
		UndoMaxDepth:  DefaultUndoDepth,
		ArchiveDriver: StorageSQLite,
		SQLitePath:    "scenegraph.db",
		Blob:          blob.Config{Driver: blob.DriverFilesystem, FSRoot: "./bundles"},
		APIAddr:       ":8080",
	}
}

// LoadConfig reads path (TOML or YAML, chosen by extension) over the
// defaults and then applies environment overrides. An empty path skips the
// file.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		switch ext := strings.ToLower(filepath.Ext(path)); ext {
		case ".toml":
			dec := toml.NewDecoder(bytes.NewReader(raw))
			dec.DisallowUnknownFields()
			if err := dec.Decode(&cfg); err != nil {
				return Config{}, fmt.Errorf("parse %s: %w", path, err)
			}
		case ".yaml", ".yml":
			dec := yaml.NewDecoder(bytes.NewReader(raw))
			dec.KnownFields(true)
			if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
				return Config{}, fmt.Errorf("parse %s: %w", path, err)
			}
		default:
			return Config{}, fmt.Errorf("unsupported config format %q", ext)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv(EnvArchiveDriver); v != "" {
		cfg.ArchiveDriver = StorageDriver(strings.ToLower(v))
	}
	if v := os.Getenv(EnvSQLitePath); v != "" {
		cfg.SQLitePath = v
	}
	if v := os.Getenv(EnvPostgresDSN); v != "" {
		cfg.PostgresDSN = v
	}
	if v := os.Getenv(EnvAPIAddr); v != "" {
		cfg.APIAddr = v
	}
	if v := os.Getenv(EnvUndoDepth); v != "" {
		depth, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvUndoDepth, err)
		}
		cfg.UndoMaxDepth = depth
	}
	if v := os.Getenv(EnvUndoEnabled); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvUndoEnabled, err)
		}
		cfg.UndoEnabled = enabled
	}
	cfg.Blob = blob.ConfigFromEnv(cfg.Blob)
	return nil
}

// SceneOptions translates the undo settings into scene options.
func (c Config) SceneOptions() []SceneOption {
	opts := []SceneOption{WithUndoDepth(c.UndoMaxDepth)}
	if !c.UndoEnabled {
		opts = append(opts, WithUndoDisabled())
	}
	return opts
}
