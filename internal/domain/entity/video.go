package entity

import "time"

type VideoStatus string

const (
	VideoStatusPending VideoStatus = "pending"
	VideoStatusReady   VideoStatus = "ready"
)

// Video is the media record the streaming pipeline finalizes. The row is
// owned by the upstream catalog service; this worker only flips it to ready
// with the streamed playlist, duration and thumbnail.
type Video struct {
	ID           string
	Source       string
	Status       VideoStatus
	PlaylistURL  string
	ThumbnailURL string
	Duration     int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// VideoUpdates carries the fields the finalizer is allowed to change.
// Nil pointers leave the column untouched.
type VideoUpdates struct {
	Status       *VideoStatus
	PlaylistURL  *string
	ThumbnailURL *string
	Duration     *int
}
