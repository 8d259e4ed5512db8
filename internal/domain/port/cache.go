package port

import (
	"context"

	"github.com/google/uuid"
)

// CompletedCache is a best-effort fast path in front of the task store for
// the completed flag. The database row stays the source of truth; cache
// errors are logged and ignored.
type CompletedCache interface {
	IsCompleted(ctx context.Context, taskID uuid.UUID) (bool, error)
	MarkCompleted(ctx context.Context, taskID uuid.UUID) error
}
