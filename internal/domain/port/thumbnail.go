package port

import "context"

type ThumbnailParams struct {
	SourceURL       string
	DurationSeconds int
	StoragePath     string
	IsSegmentInput  bool
}

// ThumbnailExtractor captures one preview frame and uploads it. Callers
// treat failure as non-fatal.
type ThumbnailExtractor interface {
	Extract(ctx context.Context, params ThumbnailParams) (string, error)
}
