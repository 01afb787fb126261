package photos

import (
	"context"
	"fmt"

	fsstore "herdbook/internal/infra/photos/fs"
	memorystore "herdbook/internal/infra/photos/memory"
	infraS3 "herdbook/internal/infra/photos/s3"
)

// S3Config re-exports the S3 driver configuration.
type S3Config = infraS3.Config

// Config selects and configures a photo driver.
type Config struct {
	Driver Driver
	FSRoot string
	S3     S3Config
}

// Open constructs the configured driver; an empty driver means fs.
func Open(ctx context.Context, cfg Config) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return NewFilesystem(cfg.FSRoot)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown photo driver %q", driver)
	}
}

// NewFilesystem returns a filesystem-backed Store rooted at root.
func NewFilesystem(root string) (Store, error) {
	s, err := fsstore.New(root)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewMemory returns an in-memory Store.
func NewMemory() Store { return memorystore.New() }

// NewS3 returns an S3-backed Store.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	s, err := infraS3.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewMockS3ForTests exposes the fake-transport S3 store to other packages' tests.
func NewMockS3ForTests() Store { return infraS3.NewMockForTests() }
