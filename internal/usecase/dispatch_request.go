package usecase

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/streamkit/hls-processing-service/internal/domain/apperr"
	"github.com/streamkit/hls-processing-service/internal/domain/entity"
	"github.com/streamkit/hls-processing-service/internal/domain/port"
	"go.uber.org/zap"
)

type DispatchRequestConfig struct {
	TaskQueue     string
	TargetBaseURL string
	Audience      string
}

// DispatchRequestHandler is the worker's front door: it turns validated job
// descriptions arriving on the dispatch queue into idempotent task
// dispatches.
type DispatchRequestHandler struct {
	dispatcher *TaskDispatcher
	dlq        port.DLQPublisher
	logger     *zap.Logger
	cfg        DispatchRequestConfig
}

func NewDispatchRequestHandler(dispatcher *TaskDispatcher, dlq port.DLQPublisher, logger *zap.Logger, cfg DispatchRequestConfig) *DispatchRequestHandler {
	return &DispatchRequestHandler{dispatcher: dispatcher, dlq: dlq, logger: logger, cfg: cfg}
}

func (h *DispatchRequestHandler) Execute(ctx context.Context, rawMsg []byte) error {
	var req entity.DispatchRequest
	if err := json.Unmarshal(rawMsg, &req); err != nil {
		h.logger.Error("failed to unmarshal dispatch request", zap.Error(err), zap.ByteString("body", rawMsg))
		_ = h.dlq.PublishToDLQ(ctx, rawMsg, "unmarshal_error: "+err.Error())
		return nil
	}

	if req.EntityID == "" || req.EntityType == "" || req.TaskType == "" {
		h.logger.Error("dispatch request missing identifiers", zap.ByteString("body", rawMsg))
		_ = h.dlq.PublishToDLQ(ctx, rawMsg, "missing identifiers")
		return nil
	}

	targetURL := strings.TrimSuffix(h.cfg.TargetBaseURL, "/") + "/tasks/" + string(req.TaskType)

	handle, err := h.dispatcher.Dispatch(ctx, DispatchParams{
		Queue:        h.cfg.TaskQueue,
		TargetURL:    targetURL,
		Audience:     h.cfg.Audience,
		Payload:      req.Payload,
		DelaySeconds: req.DelaySeconds,
		EntityType:   req.EntityType,
		EntityID:     req.EntityID,
		TaskType:     req.TaskType,
	})
	if err != nil {
		if apperr.IsRetryable(err) {
			return err
		}
		h.logger.Error("dispatch request rejected", zap.Error(err))
		_ = h.dlq.PublishToDLQ(ctx, rawMsg, err.Error())
		return nil
	}

	if handle == nil {
		h.logger.Info("dispatch skipped, task already completed",
			zap.String("entity_id", req.EntityID),
			zap.String("task_type", string(req.TaskType)),
		)
	}
	return nil
}
