// Package httpfetch is the outbound HTTP adapter. Every request carries a
// fixed timeout and failures are mapped onto the apperr taxonomy so callers
// can tell a timeout from a refused connection from an upstream 4xx/5xx.
package httpfetch

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/streamkit/hls-processing-service/internal/domain/apperr"
)

const DefaultTimeout = 15 * time.Second

type Fetcher struct {
	client  *http.Client
	timeout time.Duration
}

func New(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Fetcher{
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

func (f *Fetcher) FetchText(ctx context.Context, url string) (string, error) {
	body, _, err := f.FetchStream(ctx, url)
	if err != nil {
		return "", err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return "", classifyTransportError(url, err)
	}
	return string(data), nil
}

func (f *Fetcher) FetchStream(ctx context.Context, url string) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.CodeClient, false, "build request for "+url, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, classifyTransportError(url, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, 0, apperr.FromHTTPStatus(resp.StatusCode, "fetch "+url)
	}

	return resp.Body, resp.ContentLength, nil
}

func classifyTransportError(url string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Timeout("fetch "+url, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperr.Timeout("fetch "+url, err)
	}
	return apperr.Network("fetch "+url, err)
}
