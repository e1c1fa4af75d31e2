package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"
)

type Storage interface {
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Upload(ctx context.Context, key string, data io.ReadSeeker, contentType string) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// ImportKey builds the object key for an uploaded sheet.
func ImportKey(prefix, jobID, filename string, now time.Time) string {
	return path.Join(prefix, "imports", now.UTC().Format("2006/01/02"), fmt.Sprintf("%s-%s", jobID, path.Base(filename)))
}
