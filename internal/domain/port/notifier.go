package port

import "context"

type FailureNotifier interface {
	NotifyFailure(ctx context.Context, userEmail string, taskID string, videoID string, errorMsg string) error
}
