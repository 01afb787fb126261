// Package core defines the photo storage abstractions shared by the drivers
// under internal/infra/photos.
package core

import (
	"context"
	"errors"
	"io"
	"time"
)

// Driver identifies a concrete photo storage backend.
type Driver string

const (
	// DriverFilesystem stores photos under a local directory.
	DriverFilesystem Driver = "fs" // local filesystem (default, dev)
	// DriverS3 stores photos in an S3 / MinIO compatible bucket.
	DriverS3 Driver = "s3"
	// DriverMemory keeps photos in process memory.
	DriverMemory Driver = "memory" // tests
)

// PutOptions specifies optional parameters for Put.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// URLOptions configures URL generation for a stored photo.
type URLOptions struct {
	Expiry time.Duration // default 15m, ignored by drivers without signing
}

// Info describes a stored photo.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
	URL          string            `json:"url,omitempty"`
}

// Store is the S3-like surface the enrollment flow writes animal photos to.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Delete(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]Info, error)
	URL(ctx context.Context, key string, opts URLOptions) (string, error)
	Driver() Driver
}

var (
	// ErrUnsupported is returned when a driver lacks an optional capability.
	ErrUnsupported = errors.New("photos: unsupported operation")
	// ErrNotFound is returned when no photo is stored under a key.
	ErrNotFound = errors.New("photos: not found")
	// ErrExists is returned when Put targets a key that is already taken.
	ErrExists = errors.New("photos: key already exists")
	// ErrInvalidKey is returned for empty, absolute or traversing keys.
	ErrInvalidKey = errors.New("photos: invalid key")
)

// CloneMetadata copies user metadata so callers never share the driver's map.
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
