package entity

import "encoding/json"

// DispatchRequest is the inbound message on the dispatch queue: a validated
// job description handed over by the webhook gateway.
type DispatchRequest struct {
	EntityID     string          `json:"entity_id"`
	EntityType   EntityType      `json:"entity_type"`
	TaskType     TaskType        `json:"task_type"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	DelaySeconds int64           `json:"delay_seconds,omitempty"`
}

// StreamHLSPayload is the task body for stream-hls tasks. It travels
// base64(JSON)-encoded inside the queue task.
type StreamHLSPayload struct {
	VideoID         string     `json:"video_id"`
	SourceURL       string     `json:"source_url"`
	EntityID        string     `json:"entity_id"`
	EntityType      EntityType `json:"entity_type"`
	ExcludePatterns []string   `json:"exclude_patterns,omitempty"`
	UserEmail       string     `json:"user_email,omitempty"`
}

// VideoStatusMessage is published to the status queue after a pipeline run
// settles, successful or not.
type VideoStatusMessage struct {
	TaskID       string     `json:"task_id"`
	VideoID      string     `json:"video_id"`
	EntityID     string     `json:"entity_id"`
	EntityType   EntityType `json:"entity_type"`
	Status       TaskStatus `json:"status"`
	PlaylistURL  string     `json:"playlist_url,omitempty"`
	ThumbnailURL string     `json:"thumbnail_url,omitempty"`
	Duration     int        `json:"duration_seconds,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}
