// Package artifact stores serialized model blobs on local disk or in an
// S3-compatible bucket.
package artifact

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sktmbtkr01/his-quasar-production/internal/config"
)

// ErrNotFound is returned by Load when no artifact exists under the name.
var ErrNotFound = errors.New("artifact not found")

// Store persists named blobs. Save replaces any existing blob atomically
// from the reader's point of view.
type Store interface {
	Load(ctx context.Context, name string) ([]byte, error)
	Save(ctx context.Context, name string, data []byte) error
	Exists(ctx context.Context, name string) (bool, error)
	Location(name string) string
}

// Open returns the store selected by cfg.Backend.
func Open(ctx context.Context, cfg config.ArtifactConfig, log zerolog.Logger) (Store, error) {
	switch cfg.Backend {
	case "", "file":
		return NewFileStore(cfg.Dir), nil
	case "s3":
		s, err := NewS3Store(ctx, cfg.S3, log)
		if err != nil {
			return nil, fmt.Errorf("open s3 artifact store: %w", err)
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown artifact backend %q", cfg.Backend)
}
