package port

import (
	"context"
	"time"
)

// QueueTask is the HTTP-task descriptor submitted to the external queue.
// Body is the base64-encoded JSON payload; the X-Task-ID header is always
// present in Headers.
type QueueTask struct {
	Queue        string
	Name         string
	TargetURL    string
	Method       string
	Headers      map[string]string
	Body         []byte
	Audience     string
	DelaySeconds int64
}

// TaskHandle identifies a successfully submitted queue task.
type TaskHandle struct {
	Name       string
	Queue      string
	EnqueuedAt time.Time
}

type TaskQueue interface {
	Submit(ctx context.Context, task QueueTask) (*TaskHandle, error)
}

type StatusPublisher interface {
	PublishStatus(ctx context.Context, msg []byte) error
}

type DLQPublisher interface {
	PublishToDLQ(ctx context.Context, msg []byte, reason string) error
}
