package port

import (
	"context"

	"github.com/streamkit/hls-processing-service/internal/domain/entity"
)

type VideoStore interface {
	Get(ctx context.Context, id string) (*entity.Video, error)
	Update(ctx context.Context, tx Tx, id string, updates entity.VideoUpdates) error
}
