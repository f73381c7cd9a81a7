package domain

import (
	"context"
	"io"
)

// BlobWriter stores archive exports. Writing an existing key replaces it, so
// an export can be re-run for the same day.
type BlobWriter interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
}
