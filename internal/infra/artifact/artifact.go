// Package artifact selects and re-exports trial artifact storage backends.
package artifact

import (
	"context"
	"fmt"
	"os"

	"searchcore/internal/infra/artifact/core"
	"searchcore/internal/infra/artifact/fs"
	"searchcore/internal/infra/artifact/memory"
	"searchcore/internal/infra/artifact/s3"
)

type (
	// Store is the artifact storage contract.
	Store = core.Store
	// Driver identifies a backend implementation.
	Driver = core.Driver
	// Info describes a stored artifact.
	Info = core.Info
	// PutOptions carries optional Put parameters.
	PutOptions = core.PutOptions
	// SignedURLOptions carries pre-signed URL parameters.
	SignedURLOptions = core.SignedURLOptions
	// S3Config holds explicit S3 construction parameters.
	S3Config = s3.Config
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

// ErrUnsupported mirrors core.ErrUnsupported.
var ErrUnsupported = core.ErrUnsupported

// Key builds the canonical artifact key for a trial artifact.
func Key(experimentID, trialID, name string) string {
	return core.Key(experimentID, trialID, name)
}

// TrialPrefix returns the key prefix holding all of a trial's artifacts.
func TrialPrefix(experimentID, trialID string) string {
	return core.TrialPrefix(experimentID, trialID)
}

// NewMemory returns an in-memory artifact store suitable for tests.
func NewMemory() Store { return memory.New() }

// NewFilesystem returns a filesystem-backed artifact store rooted at path.
func NewFilesystem(root string) (Store, error) { return fs.New(root) }

// NewS3 constructs an S3-backed artifact store from the provided configuration.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) { return s3.New(ctx, cfg) }

// NewMockS3ForTests exposes the lightweight in-memory S3 mock for cross-package tests.
func NewMockS3ForTests() Store { return s3.NewMockForTests() }

// Open selects an artifact store implementation using environment variables.
//
//	SEARCHCORE_ARTIFACT_DRIVER: fs|s3|memory (default fs)
//	SEARCHCORE_ARTIFACT_FS_ROOT: directory root when driver=fs (default ./artifactdata)
//	(S3 specific variables documented in s3/store.go)
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv("SEARCHCORE_ARTIFACT_DRIVER")
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		root := os.Getenv("SEARCHCORE_ARTIFACT_FS_ROOT")
		return NewFilesystem(root)
	case DriverS3:
		return s3.OpenFromEnv(ctx)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown artifact driver %s", driver)
	}
}
