package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/streamkit/hls-processing-service/internal/domain/entity"
	"github.com/streamkit/hls-processing-service/internal/domain/port"
)

type VideoRepository struct {
	pool *pgxpool.Pool
}

func NewVideoRepository(pool *pgxpool.Pool) *VideoRepository {
	return &VideoRepository{pool: pool}
}

func (r *VideoRepository) Get(ctx context.Context, id string) (*entity.Video, error) {
	query := `
		SELECT id, source, status, playlist_url, thumbnail_url, duration, created_at, updated_at
		FROM videos WHERE id=$1`

	video := &entity.Video{}
	var status string
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&video.ID, &video.Source, &status, &video.PlaylistURL,
		&video.ThumbnailURL, &video.Duration, &video.CreatedAt, &video.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get video: %w", err)
	}
	video.Status = entity.VideoStatus(status)
	return video, nil
}

// Update changes only the fields set in updates; nil pointers leave the
// column as-is via COALESCE.
func (r *VideoRepository) Update(ctx context.Context, tx port.Tx, id string, updates entity.VideoUpdates) error {
	q := asQuerier(r.pool, tx)

	var status *string
	if updates.Status != nil {
		s := string(*updates.Status)
		status = &s
	}

	query := `
		UPDATE videos SET
			status        = COALESCE($2, status),
			playlist_url  = COALESCE($3, playlist_url),
			thumbnail_url = COALESCE($4, thumbnail_url),
			duration      = COALESCE($5, duration),
			updated_at    = $6
		WHERE id=$1`

	tag, err := q.Exec(ctx, query,
		id, status, updates.PlaylistURL, updates.ThumbnailURL, updates.Duration,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update video: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update video: no row with id %s", id)
	}
	return nil
}
