package port

import (
	"context"
	"io"
)

// ObjectStorage abstracts the media bucket. UploadStream consumes the reader
// without buffering the whole object; size may be -1 when unknown.
type ObjectStorage interface {
	UploadStream(ctx context.Context, objectPath string, reader io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, objectPath string) error
	PublicURL(objectPath string) string
}
