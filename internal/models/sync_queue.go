package models

import "encoding/json"

// Queue item types. Each names the remote resource a queued mutation
// targets.
const (
	ItemTypeMessage        = "message"
	ItemTypeCourseProgress = "course_progress"
	ItemTypeComment        = "comment"
)

// Queue item actions.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// Queue item statuses. Pending items are replay candidates; failed items are
// dead-lettered after exhausting their retry budget and are only retried
// after an explicit reset.
const (
	StatusPending = "pending"
	StatusFailed  = "failed"
)

// SyncQueueItem is one durable entry in the mutation queue. Replay order
// follows insertion order (FIFO by auto-increment id).
type SyncQueueItem struct {
	ID          int64           `db:"id" json:"id"`
	Type        string          `db:"op_type" json:"type"`
	Action      string          `db:"action" json:"action"`
	Payload     json.RawMessage `db:"payload" json:"payload"`
	Synced      bool            `db:"synced" json:"synced"`
	Status      string          `db:"status" json:"status"`
	Attempts    int             `db:"attempts" json:"attempts"`
	MaxAttempts int             `db:"max_attempts" json:"max_attempts"`
	NextRetryAt int64           `db:"next_retry_at" json:"next_retry_at"`
	LastError   string          `db:"last_error" json:"last_error,omitempty"`
	CreatedAt   int64           `db:"created_at" json:"created_at"`
	UpdatedAt   int64           `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for SyncQueueItem.
func (SyncQueueItem) TableName() string {
	return "sync_queue"
}
