package usecase

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/streamkit/hls-processing-service/internal/domain/apperr"
	"github.com/streamkit/hls-processing-service/internal/domain/entity"
	"github.com/streamkit/hls-processing-service/internal/domain/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestDispatcher(t *testing.T, store *fakeTaskStore, queue *fakeQueue, cache *fakeCompletedCache) (*TaskDispatcher, *fakeTxManager) {
	t.Helper()
	txm := &fakeTxManager{store: store}

	var completedCache port.CompletedCache
	if cache != nil {
		completedCache = cache
	}

	d, err := NewTaskDispatcher(store, txm, queue, completedCache, zap.NewNop(), DispatcherConfig{
		ServiceAccountEmail: "worker@streamkit.local",
	})
	require.NoError(t, err)
	return d, txm
}

func validParams() DispatchParams {
	return DispatchParams{
		Queue:      "video.tasks",
		TargetURL:  "http://compute:8080/tasks/convert",
		Audience:   "https://compute.streamkit.local",
		Payload:    []byte(`{"foo":1}`),
		EntityType: entity.EntityTypeVideo,
		EntityID:   "v1",
		TaskType:   entity.TaskTypeConvert,
	}
}

func TestDispatchSubmitsWithDeterministicID(t *testing.T) {
	store := newFakeTaskStore()
	queue := &fakeQueue{}
	d, txm := newTestDispatcher(t, store, queue, nil)

	handle, err := d.Dispatch(context.Background(), validParams())
	require.NoError(t, err)
	require.NotNil(t, handle)

	wantID := entity.DeterministicTaskID(entity.EntityTypeVideo, "v1", entity.TaskTypeConvert)
	require.Len(t, queue.submissions, 1)
	sub := queue.submissions[0]
	assert.Equal(t, wantID.String(), sub.Name)
	assert.Equal(t, wantID.String(), sub.Headers[TaskIDHeader])
	assert.Equal(t, "POST", sub.Method)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte(`{"foo":1}`)), string(sub.Body))

	task, err := store.GetByEntity(context.Background(), "v1", entity.EntityTypeVideo)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, entity.TaskStatusInProgress, task.Status)
	assert.False(t, task.Completed)

	require.Len(t, txm.txs, 1)
	assert.True(t, txm.txs[0].committed)
}

func TestDispatchTwiceBeforeCompletionReusesTaskID(t *testing.T) {
	store := newFakeTaskStore()
	queue := &fakeQueue{}
	d, _ := newTestDispatcher(t, store, queue, nil)

	_, err := d.Dispatch(context.Background(), validParams())
	require.NoError(t, err)
	_, err = d.Dispatch(context.Background(), validParams())
	require.NoError(t, err)

	require.Len(t, queue.submissions, 2)
	assert.Equal(t, queue.submissions[0].Name, queue.submissions[1].Name)
}

func TestDispatchSkipsCompletedTask(t *testing.T) {
	store := newFakeTaskStore()
	queue := &fakeQueue{}
	d, txm := newTestDispatcher(t, store, queue, nil)

	done := entity.NewTask("v1", entity.EntityTypeVideo, entity.TaskTypeConvert, nil)
	done.Status = entity.TaskStatusCompleted
	done.Completed = true
	store.seed(done)

	handle, err := d.Dispatch(context.Background(), validParams())
	require.NoError(t, err)
	assert.Nil(t, handle)
	assert.Empty(t, queue.submissions)

	// The short-circuit still commits its (empty) transaction.
	require.Len(t, txm.txs, 1)
	assert.True(t, txm.txs[0].committed)
}

func TestDispatchRollsBackOnQueueFailure(t *testing.T) {
	store := newFakeTaskStore()
	queue := &fakeQueue{err: errors.New("queue unavailable")}
	d, txm := newTestDispatcher(t, store, queue, nil)

	_, err := d.Dispatch(context.Background(), validParams())
	require.Error(t, err)
	assert.Equal(t, apperr.CodeDispatch, apperr.CodeOf(err))
	assert.True(t, apperr.IsRetryable(err))

	// Rollback must leave no task row behind.
	task, err := store.GetByEntity(context.Background(), "v1", entity.EntityTypeVideo)
	require.NoError(t, err)
	assert.Nil(t, task)

	require.Len(t, txm.txs, 1)
	assert.True(t, txm.txs[0].rolledBack)
}

func TestDispatchValidatesParams(t *testing.T) {
	store := newFakeTaskStore()
	queue := &fakeQueue{}
	d, _ := newTestDispatcher(t, store, queue, nil)

	cases := []struct {
		name   string
		mutate func(*DispatchParams)
	}{
		{"missing target url", func(p *DispatchParams) { p.TargetURL = "" }},
		{"missing queue", func(p *DispatchParams) { p.Queue = "" }},
		{"missing audience", func(p *DispatchParams) { p.Audience = "" }},
		{"missing entity id", func(p *DispatchParams) { p.EntityID = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := validParams()
			tc.mutate(&p)
			_, err := d.Dispatch(context.Background(), p)
			require.Error(t, err)
			assert.Equal(t, apperr.CodeConfig, apperr.CodeOf(err))
			assert.False(t, apperr.IsRetryable(err))
		})
	}
	assert.Empty(t, queue.submissions)
}

func TestDispatchCacheShortCircuit(t *testing.T) {
	store := newFakeTaskStore()
	queue := &fakeQueue{}
	taskID := entity.DeterministicTaskID(entity.EntityTypeVideo, "v1", entity.TaskTypeConvert)
	cache := &fakeCompletedCache{completed: map[uuid.UUID]bool{taskID: true}}
	d, txm := newTestDispatcher(t, store, queue, cache)

	handle, err := d.Dispatch(context.Background(), validParams())
	require.NoError(t, err)
	assert.Nil(t, handle)
	assert.Empty(t, queue.submissions)
	assert.Empty(t, txm.txs, "cache hit must not open a transaction")
}

func TestDispatchCacheErrorFallsThrough(t *testing.T) {
	store := newFakeTaskStore()
	queue := &fakeQueue{}
	cache := &fakeCompletedCache{err: errors.New("redis down")}
	d, _ := newTestDispatcher(t, store, queue, cache)

	handle, err := d.Dispatch(context.Background(), validParams())
	require.NoError(t, err)
	require.NotNil(t, handle)
	require.Len(t, queue.submissions, 1)
}

func TestNewTaskDispatcherRequiresServiceAccount(t *testing.T) {
	store := newFakeTaskStore()
	_, err := NewTaskDispatcher(store, &fakeTxManager{store: store}, &fakeQueue{}, nil, zap.NewNop(), DispatcherConfig{})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeConfig, apperr.CodeOf(err))
}
