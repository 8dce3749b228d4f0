package blob

import (
	"context"

	"chantiercore/internal/infra/blob/fs"
	memorystore "chantiercore/internal/infra/blob/memory"
	infraS3 "chantiercore/internal/infra/blob/s3"
)

// NewMemory returns an in-memory Store suitable for tests.
func NewMemory() Store { return memorystore.New() }

// NewFilesystem constructs a filesystem-backed Store rooted at the provided
// path. Call sites get the interface, not the concrete type.
func NewFilesystem(root string) (Store, error) {
	return fs.New(root)
}

// S3Config configures an S3-backed Store.
type S3Config = infraS3.Config

// NewS3 constructs an S3-backed Store from the provided configuration.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	return infraS3.New(ctx, cfg)
}

// OpenS3FromEnv constructs an S3 store using environment variables.
func OpenS3FromEnv(ctx context.Context) (Store, error) {
	return infraS3.OpenFromEnv(ctx)
}

// NewMockS3ForTests exposes the in-memory S3 mock for cross-package tests.
func NewMockS3ForTests() Store { return infraS3.NewMockForTests() }
