package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

type TaskType string

const (
	TaskTypeConvert        TaskType = "convert"
	TaskTypeStreamHLS      TaskType = "stream-hls"
	TaskTypeFixDuration    TaskType = "fix-duration"
	TaskTypeFixThumbnail   TaskType = "fix-thumbnail"
	TaskTypeCrawl          TaskType = "crawl"
	TaskTypeImportPlatform TaskType = "import-platform"
)

type EntityType string

const (
	EntityTypeVideo      EntityType = "video"
	EntityTypeCrawlVideo EntityType = "crawl-video"
)

// Task tracks one unit of queued work. The deterministic TaskID plus the
// unique (EntityID, EntityType) row make dispatch idempotent: re-dispatching
// the same logical work always lands on the same record.
type Task struct {
	TaskID     uuid.UUID
	EntityID   string
	EntityType EntityType
	Type       TaskType
	Metadata   json.RawMessage
	Status     TaskStatus
	Completed  bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// taskNamespace scopes deterministic task ids to this service.
var taskNamespace = uuid.NewSHA1(uuid.NameSpaceDNS, []byte("tasks.streamkit.io"))

// DeterministicTaskID derives a stable UUIDv5 from the logical task tuple.
// Fields are serialized in a fixed order so the id never depends on map or
// struct field ordering.
func DeterministicTaskID(entityType EntityType, entityID string, taskType TaskType) uuid.UUID {
	name := string(entityType) + "\x00" + entityID + "\x00" + string(taskType)
	return uuid.NewSHA1(taskNamespace, []byte(name))
}

func NewTask(entityID string, entityType EntityType, taskType TaskType, metadata json.RawMessage) *Task {
	now := time.Now().UTC()
	return &Task{
		TaskID:     DeterministicTaskID(entityType, entityID, taskType),
		EntityID:   entityID,
		EntityType: entityType,
		Type:       taskType,
		Metadata:   metadata,
		Status:     TaskStatusPending,
		Completed:  false,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
