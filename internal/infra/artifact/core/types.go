// Package core defines the abstractions for trial artifact storage backends
// (checkpoints, logs, rendered plots) used by higher-level services.
package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// Driver identifies a concrete artifact storage backend implementation.
type Driver string

const (
	// DriverFilesystem represents the local filesystem implementation.
	DriverFilesystem Driver = "fs" // local filesystem (default, dev)
	// DriverS3 represents an S3 / MinIO compatible implementation.
	DriverS3 Driver = "s3" // S3 / MinIO compatible
	// DriverMemory represents an in-memory implementation typically used in tests.
	DriverMemory Driver = "memory" // in-memory (tests)
)

// Key builds the canonical object key for a trial artifact.
func Key(experimentID, trialID, name string) string {
	return experimentID + "/" + trialID + "/" + name
}

// TrialPrefix returns the key prefix holding all of a trial's artifacts.
func TrialPrefix(experimentID, trialID string) string {
	return experimentID + "/" + trialID + "/"
}

// ParseKey splits a canonical artifact key back into its components.
func ParseKey(key string) (experimentID, trialID, name string, err error) {
	parts := strings.SplitN(key, "/", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", fmt.Errorf("artifact key %q is not experiment/trial/name", key)
	}
	return parts[0], parts[1], parts[2], nil
}

// PutOptions specifies optional parameters for Put.
type PutOptions struct {
	ContentType string            // MIME type, optional
	Metadata    map[string]string // User metadata (small, flat key-value)
}

// SignedURLOptions holds options for generating a pre-signed URL.
type SignedURLOptions struct {
	Method  string        // GET|PUT (currently only GET used internally)
	Expiry  time.Duration // default 15m
	Headers map[string]string
}

// Info describes a stored artifact.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
	URL          string            `json:"url,omitempty"`
}

// Store provides a thin S3-like abstraction over artifact backends. Puts are
// create-only: artifacts are immutable once written.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Head(ctx context.Context, key string) (Info, error)
	Delete(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]Info, error)
	PresignURL(ctx context.Context, key string, opts SignedURLOptions) (string, error)
	Driver() Driver
}

// ErrUnsupported is returned when an optional capability is not available.
var ErrUnsupported = errors.New("artifactstore: unsupported operation")
