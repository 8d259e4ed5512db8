package port

import (
	"context"
	"io"
)

// Fetcher performs outbound HTTP fetches with a fixed per-request timeout.
// Errors are classified per the apperr taxonomy (timeout, network, 4xx, 5xx).
type Fetcher interface {
	FetchText(ctx context.Context, url string) (string, error)
	// FetchStream returns the response body and content length (-1 when
	// unknown). The caller must close the body.
	FetchStream(ctx context.Context, url string) (io.ReadCloser, int64, error)
}
