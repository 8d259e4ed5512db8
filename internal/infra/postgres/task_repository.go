package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/streamkit/hls-processing-service/internal/domain/entity"
	"github.com/streamkit/hls-processing-service/internal/domain/port"
)

type TaskRepository struct {
	pool *pgxpool.Pool
}

func NewTaskRepository(pool *pgxpool.Pool) *TaskRepository {
	return &TaskRepository{pool: pool}
}

const taskColumns = `task_id, entity_id, entity_type, type, metadata, status, completed, created_at, updated_at`

// FindOrCreateByEntity inserts defaults unless a row for the entity already
// exists, then returns the row. Inside a transaction the returned row is
// locked FOR UPDATE so concurrent dispatchers for the same entity serialize
// at the database rather than in process.
func (r *TaskRepository) FindOrCreateByEntity(ctx context.Context, tx port.Tx, entityID string, entityType entity.EntityType, defaults *entity.Task) (*entity.Task, error) {
	q := asQuerier(r.pool, tx)

	insert := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (entity_id, entity_type) DO NOTHING`

	_, err := q.Exec(ctx, insert,
		defaults.TaskID, entityID, string(entityType), string(defaults.Type),
		[]byte(defaults.Metadata), string(defaults.Status), defaults.Completed,
		defaults.CreatedAt, defaults.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE entity_id=$1 AND entity_type=$2`
	if tx != nil {
		query += ` FOR UPDATE`
	}

	task, err := scanTask(q.QueryRow(ctx, query, entityID, string(entityType)))
	if err != nil {
		return nil, fmt.Errorf("find task by entity: %w", err)
	}
	return task, nil
}

func (r *TaskRepository) SetStatus(ctx context.Context, tx port.Tx, taskID uuid.UUID, status entity.TaskStatus) error {
	q := asQuerier(r.pool, tx)

	_, err := q.Exec(ctx,
		`UPDATE tasks SET status=$2, updated_at=$3 WHERE task_id=$1`,
		taskID, string(status), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set task status: %w", err)
	}
	return nil
}

// Complete marks the task finished. Re-completing an already-completed task
// is a no-op, not an error.
func (r *TaskRepository) Complete(ctx context.Context, tx port.Tx, taskID uuid.UUID) error {
	q := asQuerier(r.pool, tx)

	_, err := q.Exec(ctx,
		`UPDATE tasks SET status=$2, completed=true, updated_at=$3 WHERE task_id=$1`,
		taskID, string(entity.TaskStatusCompleted), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	return nil
}

func (r *TaskRepository) GetByEntity(ctx context.Context, entityID string, entityType entity.EntityType) (*entity.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE entity_id=$1 AND entity_type=$2`

	task, err := scanTask(r.pool.QueryRow(ctx, query, entityID, string(entityType)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task by entity: %w", err)
	}
	return task, nil
}

func scanTask(row pgx.Row) (*entity.Task, error) {
	task := &entity.Task{}
	var entityType, taskType, status string
	var metadata []byte

	err := row.Scan(
		&task.TaskID, &task.EntityID, &entityType, &taskType,
		&metadata, &status, &task.Completed,
		&task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.EntityType = entity.EntityType(entityType)
	task.Type = entity.TaskType(taskType)
	task.Status = entity.TaskStatus(status)
	task.Metadata = metadata
	return task, nil
}
