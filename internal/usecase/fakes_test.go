package usecase

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/streamkit/hls-processing-service/internal/domain/entity"
	"github.com/streamkit/hls-processing-service/internal/domain/port"
)

// fakeTx stages task-store mutations and applies them on commit only, so
// tests can verify rollback really leaves no visible state behind.
type fakeTx struct {
	store      *fakeTaskStore
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit(_ context.Context) error {
	t.committed = true
	if t.store != nil {
		t.store.apply(t)
	}
	return nil
}

func (t *fakeTx) Rollback(_ context.Context) error {
	if t.committed {
		return errors.New("tx already closed")
	}
	t.rolledBack = true
	if t.store != nil {
		t.store.discard(t)
	}
	return nil
}

type fakeTxManager struct {
	store *fakeTaskStore
	txs   []*fakeTx
}

func (m *fakeTxManager) Begin(_ context.Context) (port.Tx, error) {
	tx := &fakeTx{store: m.store}
	m.txs = append(m.txs, tx)
	return tx, nil
}

type fakeTaskStore struct {
	mu        sync.Mutex
	committed map[string]*entity.Task
	pending   map[port.Tx]map[string]*entity.Task
}

func newFakeTaskStore() *fakeTaskStore {
	return &fakeTaskStore{
		committed: map[string]*entity.Task{},
		pending:   map[port.Tx]map[string]*entity.Task{},
	}
}

func storeKey(entityID string, entityType entity.EntityType) string {
	return entityID + "|" + string(entityType)
}

func cloneTask(t *entity.Task) *entity.Task {
	c := *t
	return &c
}

func (s *fakeTaskStore) FindOrCreateByEntity(_ context.Context, tx port.Tx, entityID string, entityType entity.EntityType, defaults *entity.Task) (*entity.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := storeKey(entityID, entityType)
	if staged, ok := s.pending[tx]; ok {
		if t, ok := staged[k]; ok {
			return cloneTask(t), nil
		}
	}
	if t, ok := s.committed[k]; ok {
		return cloneTask(t), nil
	}

	created := cloneTask(defaults)
	if s.pending[tx] == nil {
		s.pending[tx] = map[string]*entity.Task{}
	}
	s.pending[tx][k] = created
	return cloneTask(created), nil
}

func (s *fakeTaskStore) SetStatus(_ context.Context, tx port.Tx, taskID uuid.UUID, status entity.TaskStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t := s.findStaged(tx, taskID); t != nil {
		t.Status = status
		return nil
	}
	if t := s.findCommittedByID(taskID); t != nil {
		if tx == nil {
			t.Status = status
			return nil
		}
		staged := cloneTask(t)
		staged.Status = status
		if s.pending[tx] == nil {
			s.pending[tx] = map[string]*entity.Task{}
		}
		s.pending[tx][storeKey(t.EntityID, t.EntityType)] = staged
		return nil
	}
	return errors.New("task not found")
}

func (s *fakeTaskStore) Complete(_ context.Context, tx port.Tx, taskID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	apply := func(t *entity.Task) {
		t.Status = entity.TaskStatusCompleted
		t.Completed = true
	}
	if t := s.findStaged(tx, taskID); t != nil {
		apply(t)
		return nil
	}
	if t := s.findCommittedByID(taskID); t != nil {
		if tx == nil {
			apply(t)
			return nil
		}
		staged := cloneTask(t)
		apply(staged)
		if s.pending[tx] == nil {
			s.pending[tx] = map[string]*entity.Task{}
		}
		s.pending[tx][storeKey(t.EntityID, t.EntityType)] = staged
		return nil
	}
	return errors.New("task not found")
}

func (s *fakeTaskStore) GetByEntity(_ context.Context, entityID string, entityType entity.EntityType) (*entity.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.committed[storeKey(entityID, entityType)]; ok {
		return cloneTask(t), nil
	}
	return nil, nil
}

func (s *fakeTaskStore) seed(t *entity.Task) {
	s.committed[storeKey(t.EntityID, t.EntityType)] = t
}

func (s *fakeTaskStore) findStaged(tx port.Tx, taskID uuid.UUID) *entity.Task {
	if staged, ok := s.pending[tx]; ok {
		for _, t := range staged {
			if t.TaskID == taskID {
				return t
			}
		}
	}
	return nil
}

func (s *fakeTaskStore) findCommittedByID(taskID uuid.UUID) *entity.Task {
	for _, t := range s.committed {
		if t.TaskID == taskID {
			return t
		}
	}
	return nil
}

func (s *fakeTaskStore) apply(tx port.Tx) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, t := range s.pending[tx] {
		s.committed[k] = t
	}
	delete(s.pending, tx)
}

func (s *fakeTaskStore) discard(tx port.Tx) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, tx)
}

type fakeQueue struct {
	mu          sync.Mutex
	submissions []port.QueueTask
	err         error
}

func (q *fakeQueue) Submit(_ context.Context, task port.QueueTask) (*port.TaskHandle, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return nil, q.err
	}
	q.submissions = append(q.submissions, task)
	return &port.TaskHandle{Name: task.Name, Queue: task.Queue, EnqueuedAt: time.Now().UTC()}, nil
}

type fakeCompletedCache struct {
	completed map[uuid.UUID]bool
	err       error
}

func (c *fakeCompletedCache) IsCompleted(_ context.Context, taskID uuid.UUID) (bool, error) {
	if c.err != nil {
		return false, c.err
	}
	return c.completed[taskID], nil
}

func (c *fakeCompletedCache) MarkCompleted(_ context.Context, taskID uuid.UUID) error {
	if c.completed == nil {
		c.completed = map[uuid.UUID]bool{}
	}
	c.completed[taskID] = true
	return nil
}

type fakeVideoStore struct {
	videos  map[string]*entity.Video
	updates []entity.VideoUpdates
}

func newFakeVideoStore() *fakeVideoStore {
	return &fakeVideoStore{videos: map[string]*entity.Video{}}
}

func (s *fakeVideoStore) Get(_ context.Context, id string) (*entity.Video, error) {
	return s.videos[id], nil
}

func (s *fakeVideoStore) Update(_ context.Context, _ port.Tx, id string, updates entity.VideoUpdates) error {
	v, ok := s.videos[id]
	if !ok {
		return errors.New("video not found")
	}
	if updates.Status != nil {
		v.Status = *updates.Status
	}
	if updates.PlaylistURL != nil {
		v.PlaylistURL = *updates.PlaylistURL
	}
	if updates.ThumbnailURL != nil {
		v.ThumbnailURL = *updates.ThumbnailURL
	}
	if updates.Duration != nil {
		v.Duration = *updates.Duration
	}
	s.updates = append(s.updates, updates)
	return nil
}

type fakeStatusPublisher struct {
	messages [][]byte
}

func (p *fakeStatusPublisher) PublishStatus(_ context.Context, msg []byte) error {
	p.messages = append(p.messages, msg)
	return nil
}

type fakeDLQ struct {
	messages []string
	reasons  []string
}

func (d *fakeDLQ) PublishToDLQ(_ context.Context, msg []byte, reason string) error {
	d.messages = append(d.messages, string(msg))
	d.reasons = append(d.reasons, reason)
	return nil
}

type fakeNotifier struct {
	notified []string
}

func (n *fakeNotifier) NotifyFailure(_ context.Context, userEmail, taskID, videoID, errorMsg string) error {
	n.notified = append(n.notified, userEmail)
	return nil
}

type fakeThumbs struct {
	err    error
	called bool
	params port.ThumbnailParams
}

func (t *fakeThumbs) Extract(_ context.Context, params port.ThumbnailParams) (string, error) {
	t.called = true
	t.params = params
	if t.err != nil {
		return "", t.err
	}
	return params.StoragePath, nil
}

// fakeFetcher serves canned responses per URL.
type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string]string
	errs      map[string]error
	fetched   []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{responses: map[string]string{}, errs: map[string]error{}}
}

func (f *fakeFetcher) FetchText(ctx context.Context, url string) (string, error) {
	body, _, err := f.FetchStream(ctx, url)
	if err != nil {
		return "", err
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	return string(data), err
}

func (f *fakeFetcher) FetchStream(_ context.Context, url string) (io.ReadCloser, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, url)
	if err, ok := f.errs[url]; ok {
		return nil, 0, err
	}
	body, ok := f.responses[url]
	if !ok {
		return nil, 0, errors.New("unexpected fetch: " + url)
	}
	return io.NopCloser(strings.NewReader(body)), int64(len(body)), nil
}

type fakeObjectStorage struct {
	mu       sync.Mutex
	objects  map[string][]byte
	types    map[string]string
	deletes  []string
	uploadEr error
}

func newFakeObjectStorage() *fakeObjectStorage {
	return &fakeObjectStorage{objects: map[string][]byte{}, types: map[string]string{}}
}

func (s *fakeObjectStorage) UploadStream(_ context.Context, objectPath string, reader io.Reader, _ int64, contentType string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uploadEr != nil {
		return s.uploadEr
	}
	s.objects[objectPath] = data
	s.types[objectPath] = contentType
	return nil
}

func (s *fakeObjectStorage) Delete(_ context.Context, objectPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes = append(s.deletes, objectPath)
	delete(s.objects, objectPath)
	return nil
}

func (s *fakeObjectStorage) PublicURL(objectPath string) string {
	return "https://media.example.com/" + objectPath
}
