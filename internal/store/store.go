// Package store provides the durable offline store backing the Soma client:
// cached courses, viewed records, cached conversation messages, and the
// mutation queue.
//
// All methods return explicit errors. Callers that want the legacy
// availability-first behavior (log and degrade to empty results) wrap the
// store with Quiet.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/mwangivic/soma/internal/db"
	apperrors "github.com/mwangivic/soma/internal/errors"
	"github.com/mwangivic/soma/internal/models"
)

// DefaultMaxAttempts is the retry budget assigned to new queue items.
// Items that exhaust it are dead-lettered instead of retried forever.
const DefaultMaxAttempts = 8

// Store provides typed CRUD access to the offline collections.
type Store struct {
	db *db.DB
}

// New creates a Store over an open database handle.
func New(database *db.DB) *Store {
	return &Store{db: database}
}

// =====================================================
// Course cache
// =====================================================

// PutCourse upserts a course snapshot and records that the course was
// viewed now. The two writes are independent: a viewed-record failure does
// not roll back the course write, so the collections are only eventually
// consistent with each other.
func (s *Store) PutCourse(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		return apperrors.New(apperrors.ErrInvalid, "course id is required")
	}

	now := time.Now()
	course.CachedAt = now.Unix()

	query := `
	INSERT INTO courses (id, title, data, cached_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		data = excluded.data,
		cached_at = excluded.cached_at
	`
	if _, err := s.db.ExecContext(ctx, query, course.ID, course.Title, string(course.Data), course.CachedAt); err != nil {
		return apperrors.Wrap(apperrors.ErrStoreQuery, "failed to cache course", err)
	}

	// Viewed records keep nanosecond timestamps so back-to-back views still
	// order deterministically.
	record := &models.ViewedRecord{
		ID:       course.ID,
		CourseID: course.ID,
		ViewedAt: now.UnixNano(),
	}
	viewed := `
	INSERT INTO viewed_records (id, course_id, viewed_at)
	VALUES (?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET viewed_at = excluded.viewed_at
	`
	if _, err := s.db.ExecContext(ctx, viewed, record.ID, record.CourseID, record.ViewedAt); err != nil {
		return apperrors.Wrap(apperrors.ErrStoreQuery, "failed to record course view", err)
	}
	return nil
}

// Course returns the cached course snapshot, or an ErrNotFound-coded error
// when the id has never been cached.
func (s *Store) Course(ctx context.Context, id string) (*models.Course, error) {
	query := `SELECT id, title, data, cached_at FROM courses WHERE id = ?`

	var course models.Course
	var data string
	err := s.db.QueryRowContext(ctx, query, id).Scan(&course.ID, &course.Title, &data, &course.CachedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.New(apperrors.ErrNotFound, "course not cached")
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStoreQuery, "failed to load course", err)
	}
	course.Data = json.RawMessage(data)
	return &course, nil
}

// Courses returns every cached course, in no particular order.
func (s *Store) Courses(ctx context.Context) ([]*models.Course, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, data, cached_at FROM courses`)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStoreQuery, "failed to list courses", err)
	}
	defer rows.Close()

	var courses []*models.Course
	for rows.Next() {
		var course models.Course
		var data string
		if err := rows.Scan(&course.ID, &course.Title, &data, &course.CachedAt); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStoreQuery, "failed to scan course", err)
		}
		course.Data = json.RawMessage(data)
		courses = append(courses, &course)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStoreQuery, "failed to list courses", err)
	}
	return courses, nil
}

// RecentlyViewed returns up to limit cached courses in most-recently-viewed
// order. Viewed records whose course snapshot is missing are skipped
// silently; the access log tolerates a cache that has drifted.
func (s *Store) RecentlyViewed(ctx context.Context, limit int) ([]*models.Course, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT course_id FROM viewed_records ORDER BY viewed_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStoreQuery, "failed to list viewed records", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStoreQuery, "failed to scan viewed record", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStoreQuery, "failed to list viewed records", err)
	}

	courses := make([]*models.Course, 0, len(ids))
	for _, id := range ids {
		course, err := s.Course(ctx, id)
		if apperrors.Is(err, apperrors.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		courses = append(courses, course)
	}
	return courses, nil
}

// =====================================================
// Message cache
// =====================================================

// PutMessage caches a conversation message. Messages are append-only:
// re-inserting an existing id is a no-op.
func (s *Store) PutMessage(ctx context.Context, m *models.Message) error {
	if m.ID == "" || m.ConversationID == "" {
		return apperrors.New(apperrors.ErrInvalid, "message id and conversation id are required")
	}
	if m.SentAt == 0 {
		m.SentAt = time.Now().Unix()
	}

	query := `
	INSERT INTO messages (id, conversation_id, sender_id, body, sent_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, m.ID, m.ConversationID, m.SenderID, m.Body, m.SentAt); err != nil {
		return apperrors.Wrap(apperrors.ErrStoreQuery, "failed to cache message", err)
	}
	return nil
}

// Messages returns the cached messages for one conversation. The scan is
// unindexed; order beyond storage enumeration is not guaranteed.
func (s *Store) Messages(ctx context.Context, conversationID string) ([]*models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, sender_id, body, sent_at FROM messages WHERE conversation_id = ?`,
		conversationID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStoreQuery, "failed to list messages", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Body, &m.SentAt); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStoreQuery, "failed to scan message", err)
		}
		messages = append(messages, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStoreQuery, "failed to list messages", err)
	}
	return messages, nil
}

// =====================================================
// Mutation queue
// =====================================================

// Enqueue appends a mutation to the queue and returns the stored item with
// its assigned id.
func (s *Store) Enqueue(ctx context.Context, opType, action string, payload json.RawMessage) (*models.SyncQueueItem, error) {
	if opType == "" || action == "" {
		return nil, apperrors.New(apperrors.ErrInvalid, "operation type and action are required")
	}
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}

	now := time.Now().Unix()
	item := &models.SyncQueueItem{
		Type:        opType,
		Action:      action,
		Payload:     payload,
		Status:      models.StatusPending,
		MaxAttempts: DefaultMaxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	query := `
	INSERT INTO sync_queue (op_type, action, payload, synced, status, attempts, max_attempts, next_retry_at, last_error, created_at, updated_at)
	VALUES (?, ?, ?, 0, ?, 0, ?, 0, '', ?, ?)
	`
	res, err := s.db.ExecContext(ctx, query, item.Type, item.Action, string(item.Payload),
		item.Status, item.MaxAttempts, item.CreatedAt, item.UpdatedAt)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStoreQuery, "failed to enqueue operation", err)
	}
	item.ID, err = res.LastInsertId()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStoreQuery, "failed to read queue id", err)
	}
	return item, nil
}

const queueColumns = `id, op_type, action, payload, synced, status, attempts, max_attempts, next_retry_at, last_error, created_at, updated_at`

// Pending returns the unsynced pending items whose retry time has passed,
// in insertion (replay) order.
func (s *Store) Pending(ctx context.Context, now time.Time) ([]*models.SyncQueueItem, error) {
	query := `SELECT ` + queueColumns + ` FROM sync_queue
	WHERE synced = 0 AND status = ? AND next_retry_at <= ?
	ORDER BY id`
	return s.queryQueue(ctx, query, models.StatusPending, now.Unix())
}

// Failed returns the dead-lettered items, in insertion order.
func (s *Store) Failed(ctx context.Context) ([]*models.SyncQueueItem, error) {
	query := `SELECT ` + queueColumns + ` FROM sync_queue WHERE status = ? ORDER BY id`
	return s.queryQueue(ctx, query, models.StatusFailed)
}

// MarkSynced flips an item to synced. Missing ids are a silent no-op: the
// item may have been pruned between the replay and the acknowledgment.
func (s *Store) MarkSynced(ctx context.Context, id int64) error {
	query := `UPDATE sync_queue SET synced = 1, last_error = '', updated_at = ? WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, query, time.Now().Unix(), id); err != nil {
		return apperrors.Wrap(apperrors.ErrStoreQuery, "failed to mark item synced", err)
	}
	return nil
}

// RecordFailure notes a failed replay attempt. The item is rescheduled with
// exponential backoff until its retry budget is exhausted, then
// dead-lettered.
func (s *Store) RecordFailure(ctx context.Context, id int64, cause error, now time.Time) error {
	var attempts, maxAttempts int
	err := s.db.QueryRowContext(ctx,
		`SELECT attempts, max_attempts FROM sync_queue WHERE id = ?`, id).Scan(&attempts, &maxAttempts)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStoreQuery, "failed to load queue item", err)
	}

	attempts++
	status := models.StatusPending
	nextRetryAt := now.Unix() + backoffSeconds(attempts)
	if attempts >= maxAttempts {
		status = models.StatusFailed
		nextRetryAt = 0
	}

	lastError := ""
	if cause != nil {
		lastError = cause.Error()
	}

	query := `UPDATE sync_queue SET attempts = ?, status = ?, next_retry_at = ?, last_error = ?, updated_at = ? WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, query, attempts, status, nextRetryAt, lastError, now.Unix(), id); err != nil {
		return apperrors.Wrap(apperrors.ErrStoreQuery, "failed to record item failure", err)
	}
	return nil
}

// Discard dead-letters an item immediately, bypassing its remaining retry
// budget. Used for operations the manager cannot dispatch at all.
func (s *Store) Discard(ctx context.Context, id int64, reason string) error {
	query := `UPDATE sync_queue SET status = ?, next_retry_at = 0, last_error = ?, updated_at = ? WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, query, models.StatusFailed, reason, time.Now().Unix(), id); err != nil {
		return apperrors.Wrap(apperrors.ErrStoreQuery, "failed to discard item", err)
	}
	return nil
}

// RetryFailed resets every dead-lettered item to pending with a fresh retry
// budget. Returns the number of items reset.
func (s *Store) RetryFailed(ctx context.Context) (int64, error) {
	query := `UPDATE sync_queue SET status = ?, attempts = 0, next_retry_at = 0, last_error = '', updated_at = ? WHERE status = ?`
	res, err := s.db.ExecContext(ctx, query, models.StatusPending, time.Now().Unix(), models.StatusFailed)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStoreQuery, "failed to reset failed items", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStoreQuery, "failed to count reset items", err)
	}
	return n, nil
}

// PruneSynced deletes synced items last touched before cutoff. Returns the
// number of items removed.
func (s *Store) PruneSynced(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sync_queue WHERE synced = 1 AND updated_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStoreQuery, "failed to prune synced items", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStoreQuery, "failed to count pruned items", err)
	}
	return n, nil
}

// QueueStats summarizes the queue for status displays.
type QueueStats struct {
	Total   int `json:"total"`
	Pending int `json:"pending"`
	Failed  int `json:"failed"`
	Synced  int `json:"synced"`
}

// Stats returns queue counters.
func (s *Store) Stats(ctx context.Context) (QueueStats, error) {
	var stats QueueStats
	query := `
	SELECT
		COUNT(*),
		COALESCE(SUM(CASE WHEN synced = 0 AND status = ? THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN synced = 1 THEN 1 ELSE 0 END), 0)
	FROM sync_queue
	`
	err := s.db.QueryRowContext(ctx, query, models.StatusPending, models.StatusFailed).
		Scan(&stats.Total, &stats.Pending, &stats.Failed, &stats.Synced)
	if err != nil {
		return QueueStats{}, apperrors.Wrap(apperrors.ErrStoreQuery, "failed to read queue stats", err)
	}
	return stats, nil
}

func (s *Store) queryQueue(ctx context.Context, query string, args ...interface{}) ([]*models.SyncQueueItem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStoreQuery, "failed to query queue", err)
	}
	defer rows.Close()

	var items []*models.SyncQueueItem
	for rows.Next() {
		var item models.SyncQueueItem
		var payload string
		if err := rows.Scan(&item.ID, &item.Type, &item.Action, &payload, &item.Synced,
			&item.Status, &item.Attempts, &item.MaxAttempts, &item.NextRetryAt,
			&item.LastError, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStoreQuery, "failed to scan queue item", err)
		}
		item.Payload = json.RawMessage(payload)
		items = append(items, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStoreQuery, "failed to query queue", err)
	}
	return items, nil
}

// backoffSeconds computes the exponential retry delay for the given attempt
// count: 2^attempts * 60, capped at one hour.
func backoffSeconds(attempts int) int64 {
	if attempts > 6 {
		return 3600
	}
	backoff := int64(1) << uint(attempts) * 60
	if backoff > 3600 {
		backoff = 3600
	}
	return backoff
}
