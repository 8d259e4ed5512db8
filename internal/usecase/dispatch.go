package usecase

import (
	"context"
	"encoding/base64"
	"net/http"

	"github.com/google/uuid"
	"github.com/streamkit/hls-processing-service/internal/domain/apperr"
	"github.com/streamkit/hls-processing-service/internal/domain/entity"
	"github.com/streamkit/hls-processing-service/internal/domain/port"
	"github.com/streamkit/hls-processing-service/internal/infra/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// TaskIDHeader carries the deterministic task id on every queue submission.
const TaskIDHeader = "X-Task-ID"

type DispatchParams struct {
	Queue        string
	TargetURL    string
	Audience     string
	Payload      []byte
	DelaySeconds int64
	ExtraHeaders map[string]string
	EntityType   entity.EntityType
	EntityID     string
	TaskType     entity.TaskType
}

type DispatcherConfig struct {
	ServiceAccountEmail string
}

// TaskDispatcher persists a task record and submits it to the external queue
// inside one database transaction. The deterministic task id plus the unique
// (entity_id, entity_type) row make repeated dispatches collapse onto one
// task, and a completed task is never submitted again.
type TaskDispatcher struct {
	tasks  port.TaskStore
	txm    port.TxManager
	queue  port.TaskQueue
	cache  port.CompletedCache
	logger *zap.Logger
	cfg    DispatcherConfig
}

// NewTaskDispatcher fails on missing queue configuration; that is a fatal
// deployment error, not something to retry at dispatch time.
func NewTaskDispatcher(
	tasks port.TaskStore,
	txm port.TxManager,
	queue port.TaskQueue,
	cache port.CompletedCache,
	logger *zap.Logger,
	cfg DispatcherConfig,
) (*TaskDispatcher, error) {
	if cfg.ServiceAccountEmail == "" {
		return nil, apperr.Config("dispatcher: missing service account email")
	}
	return &TaskDispatcher{
		tasks:  tasks,
		txm:    txm,
		queue:  queue,
		cache:  cache,
		logger: logger,
		cfg:    cfg,
	}, nil
}

// Dispatch returns the queue handle on success and (nil, nil) when the task
// is already completed, which is the idempotent no-op, not an error.
func (d *TaskDispatcher) Dispatch(ctx context.Context, p DispatchParams) (*port.TaskHandle, error) {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "TaskDispatcher.Dispatch")
	defer span.End()

	if err := validateParams(p); err != nil {
		metrics.TasksDispatchedTotal.WithLabelValues(string(p.TaskType), "error").Inc()
		return nil, err
	}

	taskID := entity.DeterministicTaskID(p.EntityType, p.EntityID, p.TaskType)
	span.SetAttributes(
		attribute.String("task.id", taskID.String()),
		attribute.String("task.type", string(p.TaskType)),
		attribute.String("task.entity_id", p.EntityID),
	)

	log := d.logger.With(
		zap.String("task_id", taskID.String()),
		zap.String("task_type", string(p.TaskType)),
		zap.String("entity_id", p.EntityID),
		zap.String("entity_type", string(p.EntityType)),
		zap.String("queue", p.Queue),
		zap.String("target_url", p.TargetURL),
	)

	if d.alreadyCompleted(ctx, taskID, log) {
		metrics.TasksDispatchedTotal.WithLabelValues(string(p.TaskType), "skipped").Inc()
		return nil, nil
	}

	tx, err := d.txm.Begin(ctx)
	if err != nil {
		metrics.TasksDispatchedTotal.WithLabelValues(string(p.TaskType), "error").Inc()
		return nil, apperr.Wrap(apperr.CodeDispatch, true, "begin dispatch transaction", err)
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Warn("dispatch rollback failed", zap.Error(rbErr))
			}
		}
	}()

	defaults := entity.NewTask(p.EntityID, p.EntityType, p.TaskType, p.Payload)
	task, err := d.tasks.FindOrCreateByEntity(ctx, tx, p.EntityID, p.EntityType, defaults)
	if err != nil {
		metrics.TasksDispatchedTotal.WithLabelValues(string(p.TaskType), "error").Inc()
		return nil, apperr.Wrap(apperr.CodeDispatch, true, "find or create task", err)
	}

	if task.Completed {
		// Work already done; commit the (empty) transaction and bow out.
		if err := tx.Commit(ctx); err != nil {
			return nil, apperr.Wrap(apperr.CodeDispatch, true, "commit dispatch transaction", err)
		}
		committed = true
		log.Info("task already completed, skipping dispatch")
		metrics.TasksDispatchedTotal.WithLabelValues(string(p.TaskType), "skipped").Inc()
		return nil, nil
	}

	handle, err := d.queue.Submit(ctx, d.buildQueueTask(taskID, p))
	if err != nil {
		log.Error("queue submission failed, rolling back dispatch", zap.Error(err))
		metrics.TasksDispatchedTotal.WithLabelValues(string(p.TaskType), "error").Inc()
		return nil, apperr.Wrap(apperr.CodeDispatch, true, "submit queue task", err)
	}

	if err := d.tasks.SetStatus(ctx, tx, taskID, entity.TaskStatusInProgress); err != nil {
		log.Error("status update failed, rolling back dispatch", zap.Error(err))
		metrics.TasksDispatchedTotal.WithLabelValues(string(p.TaskType), "error").Inc()
		return nil, apperr.Wrap(apperr.CodeDispatch, true, "mark task in progress", err)
	}

	if err := tx.Commit(ctx); err != nil {
		metrics.TasksDispatchedTotal.WithLabelValues(string(p.TaskType), "error").Inc()
		return nil, apperr.Wrap(apperr.CodeDispatch, true, "commit dispatch transaction", err)
	}
	committed = true

	log.Info("task dispatched")
	metrics.TasksDispatchedTotal.WithLabelValues(string(p.TaskType), "dispatched").Inc()
	return handle, nil
}

func (d *TaskDispatcher) buildQueueTask(taskID uuid.UUID, p DispatchParams) port.QueueTask {
	headers := map[string]string{TaskIDHeader: taskID.String()}
	for k, v := range p.ExtraHeaders {
		headers[k] = v
	}

	var body []byte
	if len(p.Payload) > 0 {
		body = make([]byte, base64.StdEncoding.EncodedLen(len(p.Payload)))
		base64.StdEncoding.Encode(body, p.Payload)
	}

	return port.QueueTask{
		Queue:        p.Queue,
		Name:         taskID.String(),
		TargetURL:    p.TargetURL,
		Method:       http.MethodPost,
		Headers:      headers,
		Body:         body,
		Audience:     p.Audience,
		DelaySeconds: p.DelaySeconds,
	}
}

// alreadyCompleted consults the redis fast path. Cache misses and cache
// errors both fall through to the transactional check.
func (d *TaskDispatcher) alreadyCompleted(ctx context.Context, taskID uuid.UUID, log *zap.Logger) bool {
	if d.cache == nil {
		return false
	}
	done, err := d.cache.IsCompleted(ctx, taskID)
	if err != nil {
		log.Debug("completed cache lookup failed", zap.Error(err))
		return false
	}
	if done {
		log.Info("task already completed (cache), skipping dispatch")
	}
	return done
}

func validateParams(p DispatchParams) error {
	switch {
	case p.TargetURL == "":
		return apperr.Config("dispatch: missing target url")
	case p.Queue == "":
		return apperr.Config("dispatch: missing queue")
	case p.Audience == "":
		return apperr.Config("dispatch: missing audience")
	case p.EntityID == "" || p.EntityType == "" || p.TaskType == "":
		return apperr.Config("dispatch: missing entity identifiers")
	}
	return nil
}
