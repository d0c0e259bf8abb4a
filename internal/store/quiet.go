package store

import (
	"context"
	"encoding/json"

	apperrors "github.com/mwangivic/soma/internal/errors"
	"github.com/mwangivic/soma/internal/logging"
	"github.com/mwangivic/soma/internal/models"
)

// Quiet wraps a Store with the availability-first boundary the UI expects:
// storage failures are logged and converted to neutral results (nil, empty
// slices, silent returns) instead of propagating. Callers that need to
// distinguish "empty" from "degraded" use the underlying Store directly.
type Quiet struct {
	s *Store
}

// Quiet returns the never-fail view of the store.
func (s *Store) Quiet() *Quiet {
	return &Quiet{s: s}
}

func (q *Quiet) swallow(op string, err error) {
	if err == nil {
		return
	}
	logging.ErrorWithCode("store operation degraded", string(apperrors.CodeOf(err)), err,
		map[string]interface{}{"op": op})
}

// PutCourse caches a course snapshot, logging any failure.
func (q *Quiet) PutCourse(ctx context.Context, course *models.Course) {
	q.swallow("put_course", q.s.PutCourse(ctx, course))
}

// Course returns the cached course, or nil when missing or degraded.
func (q *Quiet) Course(ctx context.Context, id string) *models.Course {
	course, err := q.s.Course(ctx, id)
	if err != nil {
		if !apperrors.Is(err, apperrors.ErrNotFound) {
			q.swallow("get_course", err)
		}
		return nil
	}
	return course
}

// Courses returns all cached courses, or an empty slice when degraded.
func (q *Quiet) Courses(ctx context.Context) []*models.Course {
	courses, err := q.s.Courses(ctx)
	if err != nil {
		q.swallow("list_courses", err)
		return []*models.Course{}
	}
	if courses == nil {
		return []*models.Course{}
	}
	return courses
}

// RecentlyViewed returns the most recently viewed courses, or an empty
// slice when degraded.
func (q *Quiet) RecentlyViewed(ctx context.Context, limit int) []*models.Course {
	courses, err := q.s.RecentlyViewed(ctx, limit)
	if err != nil {
		q.swallow("recently_viewed", err)
		return []*models.Course{}
	}
	if courses == nil {
		return []*models.Course{}
	}
	return courses
}

// PutMessage caches a message, logging any failure.
func (q *Quiet) PutMessage(ctx context.Context, m *models.Message) {
	q.swallow("put_message", q.s.PutMessage(ctx, m))
}

// Messages returns the cached messages for a conversation, or an empty
// slice when degraded.
func (q *Quiet) Messages(ctx context.Context, conversationID string) []*models.Message {
	messages, err := q.s.Messages(ctx, conversationID)
	if err != nil {
		q.swallow("list_messages", err)
		return []*models.Message{}
	}
	if messages == nil {
		return []*models.Message{}
	}
	return messages
}

// Enqueue appends a mutation to the queue, logging any failure. The caller
// gets no acknowledgment; enqueueing is fire-and-forget at this boundary.
func (q *Quiet) Enqueue(ctx context.Context, opType, action string, payload json.RawMessage) {
	_, err := q.s.Enqueue(ctx, opType, action, payload)
	q.swallow("enqueue", err)
}
