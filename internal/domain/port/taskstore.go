package port

import (
	"context"

	"github.com/google/uuid"
	"github.com/streamkit/hls-processing-service/internal/domain/entity"
)

type TaskStore interface {
	// FindOrCreateByEntity returns the existing task row for
	// (entityID, entityType) or inserts defaults and returns that. The
	// unique constraint on the pair serializes concurrent dispatchers.
	FindOrCreateByEntity(ctx context.Context, tx Tx, entityID string, entityType entity.EntityType, defaults *entity.Task) (*entity.Task, error)

	SetStatus(ctx context.Context, tx Tx, taskID uuid.UUID, status entity.TaskStatus) error

	// Complete sets status=completed and completed=true atomically. Safe to
	// call on an already-completed task.
	Complete(ctx context.Context, tx Tx, taskID uuid.UUID) error

	GetByEntity(ctx context.Context, entityID string, entityType entity.EntityType) (*entity.Task, error)
}
