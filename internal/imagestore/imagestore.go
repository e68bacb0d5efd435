package imagestore

import (
	"context"
	"io"
)

// Image references an externally hosted asset
type Image struct {
	URL      string `json:"url"`
	PublicID string `json:"public_id"`
}

// Upload carries the content of a single incoming image
type Upload struct {
	Reader      io.Reader
	Size        int64
	Name        string
	ContentType string
}

// Store is the narrow interface to the external image host
type Store interface {
	Upload(ctx context.Context, up Upload) (Image, error)
	Delete(ctx context.Context, publicID string) error
}
