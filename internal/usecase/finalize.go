package usecase

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/streamkit/hls-processing-service/internal/domain/entity"
	"github.com/streamkit/hls-processing-service/internal/domain/port"
	"go.uber.org/zap"
)

type FinishVideoParams struct {
	TaskID       uuid.UUID
	VideoID      string
	Updates      entity.VideoUpdates
	Notification entity.VideoStatusMessage
}

// VideoFinalizer closes out a pipeline run: completing the task record and
// updating the video row happen in one transaction, then the user
// notification goes out on the status queue.
type VideoFinalizer struct {
	tasks     port.TaskStore
	videos    port.VideoStore
	txm       port.TxManager
	cache     port.CompletedCache
	publisher port.StatusPublisher
	logger    *zap.Logger
}

func NewVideoFinalizer(
	tasks port.TaskStore,
	videos port.VideoStore,
	txm port.TxManager,
	cache port.CompletedCache,
	publisher port.StatusPublisher,
	logger *zap.Logger,
) *VideoFinalizer {
	return &VideoFinalizer{
		tasks:     tasks,
		videos:    videos,
		txm:       txm,
		cache:     cache,
		publisher: publisher,
		logger:    logger,
	}
}

func (f *VideoFinalizer) FinishVideoProcess(ctx context.Context, p FinishVideoParams) error {
	tx, err := f.txm.Begin(ctx)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				f.logger.Warn("finalize rollback failed", zap.Error(rbErr))
			}
		}
	}()

	if err := f.tasks.Complete(ctx, tx, p.TaskID); err != nil {
		return err
	}
	if err := f.videos.Update(ctx, tx, p.VideoID, p.Updates); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	committed = true

	if f.cache != nil {
		if err := f.cache.MarkCompleted(ctx, p.TaskID); err != nil {
			f.logger.Debug("completed cache update failed", zap.Error(err))
		}
	}

	f.publishNotification(ctx, p.Notification)

	f.logger.Info("video process finished",
		zap.String("task_id", p.TaskID.String()),
		zap.String("video_id", p.VideoID),
	)
	return nil
}

func (f *VideoFinalizer) publishNotification(ctx context.Context, msg entity.VideoStatusMessage) {
	data, _ := json.Marshal(msg)
	if err := f.publisher.PublishStatus(ctx, data); err != nil {
		f.logger.Error("failed to publish status notification",
			zap.String("task_id", msg.TaskID),
			zap.Error(err),
		)
	}
}
