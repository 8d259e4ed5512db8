// Package streamer moves HLS media from the source CDN into object storage:
// bounded-concurrency segment transfers plus the rewritten manifest itself.
package streamer

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/streamkit/hls-processing-service/internal/domain/apperr"
	"github.com/streamkit/hls-processing-service/internal/domain/port"
	"github.com/streamkit/hls-processing-service/internal/infra/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultConcurrencyLimit = 5

	ManifestContentType = "application/vnd.apple.mpegurl"
	SegmentContentType  = "video/MP2T"
)

type StreamAllParams struct {
	SegmentURLs      []string
	BaseStoragePath  string
	ConcurrencyLimit int
	// MaxSegmentSizeBytes rejects oversized segments mid-stream. Zero means
	// no limit.
	MaxSegmentSizeBytes int64
}

type Streamer struct {
	fetcher port.Fetcher
	storage port.ObjectStorage
	logger  *zap.Logger
}

func New(fetcher port.Fetcher, storage port.ObjectStorage, logger *zap.Logger) *Streamer {
	return &Streamer{fetcher: fetcher, storage: storage, logger: logger}
}

// StreamManifest uploads the rewritten manifest content.
func (s *Streamer) StreamManifest(ctx context.Context, content string, storagePath string) error {
	reader := strings.NewReader(content)
	if err := s.storage.UploadStream(ctx, storagePath, reader, int64(reader.Len()), ManifestContentType); err != nil {
		return fmt.Errorf("upload manifest to %s: %w", storagePath, err)
	}
	return nil
}

// StreamAll transfers every segment to storage. Segments are processed in
// batches of ConcurrencyLimit: a batch runs concurrently, the next batch does
// not start until the previous one has fully settled. Any single failure
// aborts the whole call; one broken segment invalidates the HLS asset.
func (s *Streamer) StreamAll(ctx context.Context, params StreamAllParams) error {
	limit := params.ConcurrencyLimit
	if limit <= 0 {
		limit = DefaultConcurrencyLimit
	}

	urls := params.SegmentURLs
	for start := 0; start < len(urls); start += limit {
		end := start + limit
		if end > len(urls) {
			end = len(urls)
		}
		batch := urls[start:end]

		g, gctx := errgroup.WithContext(ctx)
		for _, segmentURL := range batch {
			g.Go(func() error {
				return s.streamSegment(gctx, segmentURL, params)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		metrics.SegmentsStreamedTotal.Add(float64(len(batch)))
	}

	return nil
}

func (s *Streamer) streamSegment(ctx context.Context, segmentURL string, params StreamAllParams) error {
	body, size, err := s.fetcher.FetchStream(ctx, segmentURL)
	if err != nil {
		return apperr.Wrap(apperr.CodeSegmentStream, true, "failed to fetch segment "+segmentURL, err)
	}
	if body == nil {
		return apperr.New(apperr.CodeSegmentStream, true, "failed to fetch segment "+segmentURL+": empty body")
	}
	defer body.Close()

	if params.MaxSegmentSizeBytes > 0 && size > params.MaxSegmentSizeBytes {
		return apperr.New(apperr.CodeSegmentStream, false,
			fmt.Sprintf("segment %s exceeds size limit (%d > %d bytes)", segmentURL, size, params.MaxSegmentSizeBytes))
	}

	var reader io.Reader = body
	if params.MaxSegmentSizeBytes > 0 {
		reader = &maxSizeReader{r: body, max: params.MaxSegmentSizeBytes, url: segmentURL}
	}

	objectPath := path.Join(params.BaseStoragePath, basename(segmentURL))
	if err := s.storage.UploadStream(ctx, objectPath, reader, size, SegmentContentType); err != nil {
		s.cleanupPartialObject(ctx, objectPath, err)
		return apperr.Wrap(apperr.CodeSegmentStream, true, "upload segment "+segmentURL, err)
	}

	return nil
}

// cleanupPartialObject best-effort deletes a partially written object. A
// delete failure is logged alongside the original error but never masks it.
func (s *Streamer) cleanupPartialObject(ctx context.Context, objectPath string, uploadErr error) {
	if delErr := s.storage.Delete(ctx, objectPath); delErr != nil {
		s.logger.Error("failed to delete partial object after upload failure",
			zap.String("object", objectPath),
			zap.NamedError("upload_error", uploadErr),
			zap.NamedError("delete_error", delErr),
		)
		return
	}
	s.logger.Warn("deleted partial object after upload failure",
		zap.String("object", objectPath),
		zap.Error(uploadErr),
	)
}

func basename(rawURL string) string {
	// Strip query/fragment before taking the basename.
	if i := strings.IndexAny(rawURL, "?#"); i >= 0 {
		rawURL = rawURL[:i]
	}
	return path.Base(rawURL)
}

type maxSizeReader struct {
	r    io.Reader
	max  int64
	read int64
	url  string
}

func (m *maxSizeReader) Read(p []byte) (int, error) {
	n, err := m.r.Read(p)
	m.read += int64(n)
	if m.read > m.max {
		return n, apperr.New(apperr.CodeSegmentStream, false,
			fmt.Sprintf("segment %s exceeds size limit (%d bytes)", m.url, m.max))
	}
	return n, err
}
