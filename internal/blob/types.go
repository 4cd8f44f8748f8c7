// Package blob is the entry point for bundle storage. Callers depend on the
// Store interface and obtain a backend through Open.
package blob

import "scenegraph/internal/blob/core"

type (
	Driver     = core.Driver
	PutOptions = core.PutOptions
	Info       = core.Info
	Store      = core.Store
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	ErrExists   = core.ErrExists
	ErrNotFound = core.ErrNotFound
)
