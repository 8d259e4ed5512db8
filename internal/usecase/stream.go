package usecase

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"path"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/streamkit/hls-processing-service/internal/domain/apperr"
	"github.com/streamkit/hls-processing-service/internal/domain/entity"
	"github.com/streamkit/hls-processing-service/internal/domain/port"
	"github.com/streamkit/hls-processing-service/internal/infra/metrics"
	"github.com/streamkit/hls-processing-service/internal/playlist"
	"github.com/streamkit/hls-processing-service/internal/streamer"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type StreamHLSConfig struct {
	ConcurrencyLimit    int
	MaxSegmentSizeBytes int64
	// StoragePrefix is the object path prefix for streamed assets,
	// e.g. "videos".
	StoragePrefix string
}

// StreamHLSUseCase executes a stream-hls queue task: parse and filter the
// manifest, transfer the kept segments and the rewritten manifest to object
// storage, capture a thumbnail, then finalize task and video state.
type StreamHLSUseCase struct {
	parser    *playlist.Parser
	streamer  *streamer.Streamer
	thumbs    port.ThumbnailExtractor
	finalizer *VideoFinalizer
	tasks     port.TaskStore
	txm       port.TxManager
	storage   port.ObjectStorage
	dlq       port.DLQPublisher
	notifier  port.FailureNotifier
	logger    *zap.Logger
	cfg       StreamHLSConfig
}

func NewStreamHLSUseCase(
	parser *playlist.Parser,
	segStreamer *streamer.Streamer,
	thumbs port.ThumbnailExtractor,
	finalizer *VideoFinalizer,
	tasks port.TaskStore,
	txm port.TxManager,
	storage port.ObjectStorage,
	dlq port.DLQPublisher,
	notifier port.FailureNotifier,
	logger *zap.Logger,
	cfg StreamHLSConfig,
) *StreamHLSUseCase {
	if cfg.StoragePrefix == "" {
		cfg.StoragePrefix = "videos"
	}
	return &StreamHLSUseCase{
		parser:    parser,
		streamer:  segStreamer,
		thumbs:    thumbs,
		finalizer: finalizer,
		tasks:     tasks,
		txm:       txm,
		storage:   storage,
		dlq:       dlq,
		notifier:  notifier,
		logger:    logger,
		cfg:       cfg,
	}
}

// Execute consumes one queue-task delivery. The body is the dispatcher's
// base64(JSON) task payload. A nil return acks the message; a non-nil
// return makes the consumer requeue it.
func (uc *StreamHLSUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "StreamHLSUseCase.Execute")
	defer span.End()

	totalTimer := time.Now()

	payload, err := decodeTaskBody(rawMsg)
	if err != nil {
		uc.logger.Error("failed to decode task body", zap.Error(err), zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "decode_error: "+err.Error())
		return nil
	}

	taskID := entity.DeterministicTaskID(payload.EntityType, payload.EntityID, entity.TaskTypeStreamHLS)
	span.SetAttributes(
		attribute.String("task.id", taskID.String()),
		attribute.String("video.id", payload.VideoID),
	)

	log := uc.logger.With(
		zap.String("task_id", taskID.String()),
		zap.String("video_id", payload.VideoID),
		zap.String("source_url", payload.SourceURL),
	)

	excludePatterns, err := compilePatterns(payload.ExcludePatterns)
	if err != nil {
		log.Error("invalid exclude pattern", zap.Error(err))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "invalid_pattern: "+err.Error())
		return nil
	}

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	if err := uc.runPipeline(ctx, taskID, payload, excludePatterns, rawMsg, log); err != nil {
		if apperr.IsRetryable(err) {
			metrics.PipelinesTotal.WithLabelValues("retry").Inc()
			return err
		}
		uc.handlePermanentFailure(ctx, taskID, payload, rawMsg, err, log)
		return nil
	}

	metrics.PipelinesTotal.WithLabelValues("completed").Inc()
	metrics.StageDuration.WithLabelValues("total").Observe(time.Since(totalTimer).Seconds())
	return nil
}

func (uc *StreamHLSUseCase) runPipeline(
	ctx context.Context,
	taskID uuid.UUID,
	payload *entity.StreamHLSPayload,
	excludePatterns []*regexp.Regexp,
	rawMsg []byte,
	log *zap.Logger,
) error {
	tracer := otel.Tracer("usecase")
	basePath := path.Join(uc.cfg.StoragePrefix, payload.VideoID)

	// Parse and filter the manifest.
	parseStart := time.Now()
	ctxParse, spanParse := tracer.Start(ctx, "parse_manifest")
	pl, err := uc.parser.Parse(ctxParse, payload.SourceURL, excludePatterns)
	spanParse.End()
	if err != nil {
		log.Error("manifest parse failed", zap.Error(err))
		return err
	}
	metrics.StageDuration.WithLabelValues("parse").Observe(time.Since(parseStart).Seconds())

	if len(pl.Included) == 0 {
		return apperr.New(apperr.CodeEmptyContent, false, "manifest has no usable segments after filtering")
	}

	// Stream every kept segment, then the manifest itself.
	streamStart := time.Now()
	ctxStream, spanStream := tracer.Start(ctx, "stream_segments")
	segmentURLs := make([]string, len(pl.Included))
	for i, seg := range pl.Included {
		segmentURLs[i] = seg.URL
	}
	err = uc.streamer.StreamAll(ctxStream, streamer.StreamAllParams{
		SegmentURLs:         segmentURLs,
		BaseStoragePath:     basePath,
		ConcurrencyLimit:    uc.cfg.ConcurrencyLimit,
		MaxSegmentSizeBytes: uc.cfg.MaxSegmentSizeBytes,
	})
	spanStream.End()
	if err != nil {
		log.Error("segment streaming failed", zap.Error(err))
		return err
	}

	manifestPath := path.Join(basePath, "index.m3u8")
	if err := uc.streamer.StreamManifest(ctx, pl.Rewritten, manifestPath); err != nil {
		log.Error("manifest upload failed", zap.Error(err))
		return err
	}
	metrics.StageDuration.WithLabelValues("stream").Observe(time.Since(streamStart).Seconds())

	// Thumbnail failure never sinks the pipeline.
	thumbnailURL := uc.extractThumbnail(ctx, basePath, pl, log)

	status := entity.VideoStatusReady
	playlistURL := uc.storage.PublicURL(manifestPath)
	duration := pl.TotalDurationSeconds

	return uc.finalizer.FinishVideoProcess(ctx, FinishVideoParams{
		TaskID:  taskID,
		VideoID: payload.VideoID,
		Updates: entity.VideoUpdates{
			Status:       &status,
			PlaylistURL:  &playlistURL,
			ThumbnailURL: &thumbnailURL,
			Duration:     &duration,
		},
		Notification: entity.VideoStatusMessage{
			TaskID:       taskID.String(),
			VideoID:      payload.VideoID,
			EntityID:     payload.EntityID,
			EntityType:   payload.EntityType,
			Status:       entity.TaskStatusCompleted,
			PlaylistURL:  playlistURL,
			ThumbnailURL: thumbnailURL,
			Duration:     duration,
		},
	})
}

// extractThumbnail returns the public thumbnail URL, or "" when extraction
// failed. The error is logged and counted, nothing more.
func (uc *StreamHLSUseCase) extractThumbnail(ctx context.Context, basePath string, pl *playlist.Playlist, log *zap.Logger) string {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "extract_thumbnail")
	defer span.End()

	start := time.Now()
	storagePath, err := uc.thumbs.Extract(ctx, port.ThumbnailParams{
		SourceURL:       pl.Included[0].URL,
		DurationSeconds: pl.TotalDurationSeconds,
		StoragePath:     path.Join(basePath, "thumbnail.jpg"),
		IsSegmentInput:  true,
	})
	metrics.StageDuration.WithLabelValues("thumbnail").Observe(time.Since(start).Seconds())
	if err != nil {
		log.Warn("thumbnail extraction failed, continuing without thumbnail", zap.Error(err))
		metrics.ThumbnailFailuresTotal.Inc()
		return ""
	}
	return uc.storage.PublicURL(storagePath)
}

func (uc *StreamHLSUseCase) handlePermanentFailure(
	ctx context.Context,
	taskID uuid.UUID,
	payload *entity.StreamHLSPayload,
	rawMsg []byte,
	cause error,
	log *zap.Logger,
) {
	log.Error("pipeline permanently failed", zap.Error(cause))

	if err := uc.tasks.SetStatus(ctx, nil, taskID, entity.TaskStatusFailed); err != nil {
		log.Error("failed to mark task failed", zap.Error(err))
	}

	_ = uc.dlq.PublishToDLQ(ctx, rawMsg, cause.Error())

	if payload.UserEmail != "" {
		_ = uc.notifier.NotifyFailure(ctx, payload.UserEmail, taskID.String(), payload.VideoID, cause.Error())
	}

	metrics.PipelinesTotal.WithLabelValues("failed").Inc()
}

// decodeTaskBody reverses the dispatcher's encoding: base64, then JSON.
func decodeTaskBody(rawMsg []byte) (*entity.StreamHLSPayload, error) {
	decoded := make([]byte, base64.StdEncoding.DecodedLen(len(rawMsg)))
	n, err := base64.StdEncoding.Decode(decoded, rawMsg)
	if err != nil {
		return nil, err
	}

	var payload entity.StreamHLSPayload
	if err := json.Unmarshal(decoded[:n], &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}
