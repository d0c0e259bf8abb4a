package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mwangivic/soma/internal/connectivity"
	"github.com/mwangivic/soma/internal/db"
	"github.com/mwangivic/soma/internal/models"
	"github.com/mwangivic/soma/internal/store"
	"github.com/mwangivic/soma/internal/syncer"
)

// okBackend accepts every remote write.
type okBackend struct{}

func (okBackend) InsertMessage(context.Context, json.RawMessage) error        { return nil }
func (okBackend) UpsertLessonProgress(context.Context, json.RawMessage) error { return nil }
func (okBackend) InsertComment(context.Context, json.RawMessage) error        { return nil }

type fixture struct {
	store    *store.Store
	observer *connectivity.Observer
	mux      *http.ServeMux
}

func newFixture(t *testing.T, online bool) *fixture {
	t.Helper()

	database, err := db.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	st := store.New(database)
	observer := connectivity.NewObserver(online, nil)
	manager := syncer.New(st, okBackend{}, observer, nil, &syncer.Config{Interval: time.Hour})

	mux := http.NewServeMux()
	NewOfflineHandler(st, manager, observer).Register(mux)

	return &fixture{store: st, observer: observer, mux: mux}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

// TestCourseCacheRoundTrip tests PUT then GET of a course snapshot.
func TestCourseCacheRoundTrip(t *testing.T) {
	f := newFixture(t, true)

	rec := f.do(t, http.MethodPut, "/api/courses/c1", `{"title":"Intro to Go","lessons":[]}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("PUT: expected 204, got %d: %s", rec.Code, rec.Body)
	}

	rec = f.do(t, http.MethodGet, "/api/courses/c1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET: expected 200, got %d", rec.Code)
	}
	var course models.Course
	if err := json.Unmarshal(rec.Body.Bytes(), &course); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if course.ID != "c1" || course.Title != "Intro to Go" {
		t.Errorf("Unexpected course: %+v", course)
	}
}

// TestGetCourseNotCached tests the 404 path.
func TestGetCourseNotCached(t *testing.T) {
	f := newFixture(t, true)

	rec := f.do(t, http.MethodGet, "/api/courses/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "NOT_FOUND") {
		t.Errorf("Expected NOT_FOUND code in body, got %s", rec.Body)
	}
}

// TestRecentCourses tests the recent list and its limit validation.
func TestRecentCourses(t *testing.T) {
	f := newFixture(t, true)

	for _, id := range []string{"a", "b", "c"} {
		f.do(t, http.MethodPut, "/api/courses/"+id, `{"title":"`+id+`"}`)
	}

	rec := f.do(t, http.MethodGet, "/api/courses/recent?limit=2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var courses []*models.Course
	if err := json.Unmarshal(rec.Body.Bytes(), &courses); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(courses) != 2 || courses[0].ID != "c" || courses[1].ID != "b" {
		t.Errorf("Unexpected recent order: %+v", courses)
	}

	rec = f.do(t, http.MethodGet, "/api/courses/recent?limit=zero", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad limit, got %d", rec.Code)
	}
}

// TestPostMessageQueuesMutation tests that an offline message is cached and
// enqueued for replay.
func TestPostMessageQueuesMutation(t *testing.T) {
	f := newFixture(t, false)

	rec := f.do(t, http.MethodPost, "/api/messages", `{"conversation_id":"conv1","body":"hi"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d: %s", rec.Code, rec.Body)
	}

	var m models.Message
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.ID == "" {
		t.Error("Expected a server-assigned message id")
	}
	if m.SentAt == 0 {
		t.Error("Expected a sent timestamp")
	}

	rec = f.do(t, http.MethodGet, "/api/conversations/conv1/messages", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), m.ID) {
		t.Errorf("Expected cached message in conversation, got %s", rec.Body)
	}

	pending, err := f.store.Pending(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if len(pending) != 1 || pending[0].Type != models.ItemTypeMessage {
		t.Errorf("Expected 1 queued message mutation, got %+v", pending)
	}
}

// TestPostMessageValidation tests required fields and id validation.
func TestPostMessageValidation(t *testing.T) {
	f := newFixture(t, true)

	rec := f.do(t, http.MethodPost, "/api/messages", `{"body":"no conversation"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing conversation_id, got %d", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/api/messages", `{"conversation_id":"c","id":"not-a-uuid"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid id, got %d", rec.Code)
	}
}

// TestPostProgressAndComment tests the raw enqueue endpoints.
func TestPostProgressAndComment(t *testing.T) {
	f := newFixture(t, false)

	rec := f.do(t, http.MethodPost, "/api/progress", `{"user_id":"u1","lesson_id":"l1","completed":true}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", rec.Code)
	}
	rec = f.do(t, http.MethodPost, "/api/comments", `{"body":"nice lesson"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", rec.Code)
	}

	pending, err := f.store.Pending(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("Expected 2 queued mutations, got %d", len(pending))
	}
	if pending[0].Type != models.ItemTypeCourseProgress || pending[0].Action != models.ActionUpdate {
		t.Errorf("Unexpected first item: %+v", pending[0])
	}
	if pending[1].Type != models.ItemTypeComment || pending[1].Action != models.ActionCreate {
		t.Errorf("Unexpected second item: %+v", pending[1])
	}
}

// TestReportConnectivity tests the host signal endpoint.
func TestReportConnectivity(t *testing.T) {
	f := newFixture(t, true)

	rec := f.do(t, http.MethodPost, "/api/connectivity", `{"online":false}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", rec.Code)
	}
	if f.observer.IsOnline() {
		t.Error("Expected observer to report offline")
	}

	rec = f.do(t, http.MethodPost, "/api/connectivity", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing online field, got %d", rec.Code)
	}
}

// TestSyncNowOffline tests the 503 mapping while offline.
func TestSyncNowOffline(t *testing.T) {
	f := newFixture(t, false)

	rec := f.do(t, http.MethodPost, "/api/sync/now", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 while offline, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "SYNC_FAILED") {
		t.Errorf("Expected SYNC_FAILED code, got %s", rec.Body)
	}
}

// TestSyncNowDrainsQueue tests a manual sync run end to end.
func TestSyncNowDrainsQueue(t *testing.T) {
	f := newFixture(t, true)

	f.do(t, http.MethodPost, "/api/messages", `{"conversation_id":"c","body":"hi"}`)

	rec := f.do(t, http.MethodPost, "/api/sync/now", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var result syncer.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Synced != 1 || result.Remaining != 0 {
		t.Errorf("Unexpected result: %+v", result)
	}
}

// TestSyncStatusAndQueue tests the status and queue inspection endpoints.
func TestSyncStatusAndQueue(t *testing.T) {
	f := newFixture(t, true)

	f.do(t, http.MethodPost, "/api/comments", `{"body":"queued"}`)

	rec := f.do(t, http.MethodGet, "/api/sync/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var status syncer.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !status.Online || status.Queue.Pending != 1 {
		t.Errorf("Unexpected status: %+v", status)
	}

	rec = f.do(t, http.MethodGet, "/api/sync/queue", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var queue struct {
		Pending []*models.SyncQueueItem `json:"pending"`
		Failed  []*models.SyncQueueItem `json:"failed"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &queue); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(queue.Pending) != 1 || len(queue.Failed) != 0 {
		t.Errorf("Unexpected queue: %+v", queue)
	}
}
