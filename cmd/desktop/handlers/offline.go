// Package handlers provides the REST API the local UI uses to read the
// offline cache, record mutations, and drive sync.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/mwangivic/soma/internal/connectivity"
	apperrors "github.com/mwangivic/soma/internal/errors"
	"github.com/mwangivic/soma/internal/models"
	"github.com/mwangivic/soma/internal/store"
	"github.com/mwangivic/soma/internal/syncer"
	"github.com/mwangivic/soma/internal/uuid"
)

// OfflineHandler serves the offline cache and sync endpoints.
type OfflineHandler struct {
	store    *store.Store
	quiet    *store.Quiet
	manager  *syncer.Manager
	observer *connectivity.Observer
}

// NewOfflineHandler creates an OfflineHandler.
func NewOfflineHandler(st *store.Store, manager *syncer.Manager, observer *connectivity.Observer) *OfflineHandler {
	return &OfflineHandler{
		store:    st,
		quiet:    st.Quiet(),
		manager:  manager,
		observer: observer,
	}
}

// Register attaches all routes to mux.
func (h *OfflineHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/courses", h.ListCourses)
	mux.HandleFunc("GET /api/courses/recent", h.RecentCourses)
	mux.HandleFunc("GET /api/courses/{id}", h.GetCourse)
	mux.HandleFunc("PUT /api/courses/{id}", h.PutCourse)
	mux.HandleFunc("GET /api/conversations/{id}/messages", h.ListMessages)
	mux.HandleFunc("POST /api/messages", h.PostMessage)
	mux.HandleFunc("POST /api/progress", h.PostProgress)
	mux.HandleFunc("POST /api/comments", h.PostComment)
	mux.HandleFunc("POST /api/connectivity", h.ReportConnectivity)
	mux.HandleFunc("GET /api/sync/status", h.SyncStatus)
	mux.HandleFunc("GET /api/sync/queue", h.SyncQueue)
	mux.HandleFunc("POST /api/sync/now", h.SyncNow)
}

// =====================================================
// Course cache
// =====================================================

// ListCourses handles GET /api/courses. Reads go through the quiet store:
// a degraded cache renders as empty, never as an error page.
func (h *OfflineHandler) ListCourses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.quiet.Courses(r.Context()))
}

// RecentCourses handles GET /api/courses/recent?limit=N.
func (h *OfflineHandler) RecentCourses(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, apperrors.ErrInvalid, "limit must be a positive integer")
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, h.quiet.RecentlyViewed(r.Context(), limit))
}

// GetCourse handles GET /api/courses/{id}.
func (h *OfflineHandler) GetCourse(w http.ResponseWriter, r *http.Request) {
	course := h.quiet.Course(r.Context(), r.PathValue("id"))
	if course == nil {
		writeError(w, http.StatusNotFound, apperrors.ErrNotFound, "course not cached")
		return
	}
	writeJSON(w, http.StatusOK, course)
}

// PutCourse handles PUT /api/courses/{id}: the UI caches a freshly fetched
// course snapshot and implicitly records a view.
func (h *OfflineHandler) PutCourse(w http.ResponseWriter, r *http.Request) {
	var snapshot json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&snapshot); err != nil {
		writeError(w, http.StatusBadRequest, apperrors.ErrInvalid, "request body must be a JSON course snapshot")
		return
	}

	course := &models.Course{
		ID:    r.PathValue("id"),
		Title: extractTitle(snapshot),
		Data:  snapshot,
	}
	h.quiet.PutCourse(r.Context(), course)
	w.WriteHeader(http.StatusNoContent)
}

// extractTitle pulls the top-level title field out of a snapshot, if any.
func extractTitle(snapshot json.RawMessage) string {
	var probe struct {
		Title string `json:"title"`
	}
	json.Unmarshal(snapshot, &probe)
	return probe.Title
}

// =====================================================
// Message cache
// =====================================================

// ListMessages handles GET /api/conversations/{id}/messages.
func (h *OfflineHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.quiet.Messages(r.Context(), r.PathValue("id")))
}

// PostMessage handles POST /api/messages: the message is cached locally and
// queued for replay. Ids are client-assigned so the record keeps its
// identity across the offline/online boundary.
func (h *OfflineHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	var m models.Message
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		writeError(w, http.StatusBadRequest, apperrors.ErrInvalid, "invalid message body")
		return
	}
	if m.ConversationID == "" {
		writeError(w, http.StatusBadRequest, apperrors.ErrInvalid, "conversation_id is required")
		return
	}
	if m.ID == "" {
		m.ID = uuid.New()
	} else if err := uuid.Validate(m.ID); err != nil {
		writeError(w, http.StatusBadRequest, apperrors.ErrInvalid, err.Error())
		return
	}
	if m.SentAt == 0 {
		m.SentAt = time.Now().Unix()
	}

	h.quiet.PutMessage(r.Context(), &m)

	payload, err := json.Marshal(&m)
	if err != nil {
		writeError(w, http.StatusInternalServerError, apperrors.ErrInternal, "failed to encode message")
		return
	}
	h.quiet.Enqueue(r.Context(), models.ItemTypeMessage, models.ActionCreate, payload)

	writeJSON(w, http.StatusAccepted, &m)
}

// PostProgress handles POST /api/progress: lesson progress payloads are
// queued verbatim for upsert on the next sync run.
func (h *OfflineHandler) PostProgress(w http.ResponseWriter, r *http.Request) {
	h.enqueueRaw(w, r, models.ItemTypeCourseProgress, models.ActionUpdate)
}

// PostComment handles POST /api/comments.
func (h *OfflineHandler) PostComment(w http.ResponseWriter, r *http.Request) {
	h.enqueueRaw(w, r, models.ItemTypeComment, models.ActionCreate)
}

func (h *OfflineHandler) enqueueRaw(w http.ResponseWriter, r *http.Request, opType, action string) {
	var payload json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, apperrors.ErrInvalid, "request body must be JSON")
		return
	}
	h.quiet.Enqueue(r.Context(), opType, action, payload)
	w.WriteHeader(http.StatusAccepted)
}

// =====================================================
// Connectivity and sync
// =====================================================

// ReportConnectivity handles POST /api/connectivity: the UI shell forwards
// the host environment's online/offline signals here.
func (h *OfflineHandler) ReportConnectivity(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Online *bool `json:"online"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Online == nil {
		writeError(w, http.StatusBadRequest, apperrors.ErrInvalid, "body must be {\"online\": true|false}")
		return
	}
	h.observer.SetOnline(*body.Online)
	w.WriteHeader(http.StatusNoContent)
}

// SyncStatus handles GET /api/sync/status.
func (h *OfflineHandler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.manager.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, apperrors.CodeOf(err), "failed to read sync status")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// SyncQueue handles GET /api/sync/queue: pending and dead-lettered items
// for admin displays.
func (h *OfflineHandler) SyncQueue(w http.ResponseWriter, r *http.Request) {
	pending, err := h.store.Pending(r.Context(), time.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, apperrors.CodeOf(err), "failed to read queue")
		return
	}
	failed, err := h.store.Failed(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, apperrors.CodeOf(err), "failed to read queue")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"pending": emptyIfNil(pending),
		"failed":  emptyIfNil(failed),
	})
}

// SyncNow handles POST /api/sync/now.
func (h *OfflineHandler) SyncNow(w http.ResponseWriter, r *http.Request) {
	result, err := h.manager.SyncNow(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, result)
	case apperrors.Is(err, apperrors.ErrSyncInProgress):
		writeError(w, http.StatusConflict, apperrors.ErrSyncInProgress, "sync already in progress")
	case apperrors.Is(err, apperrors.ErrSyncFailed):
		writeError(w, http.StatusServiceUnavailable, apperrors.ErrSyncFailed, "cannot sync while offline")
	default:
		writeError(w, http.StatusInternalServerError, apperrors.CodeOf(err), "sync run failed")
	}
}

func emptyIfNil(items []*models.SyncQueueItem) []*models.SyncQueueItem {
	if items == nil {
		return []*models.SyncQueueItem{}
	}
	return items
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code apperrors.ErrorCode, message string) {
	writeJSON(w, status, map[string]string{
		"code":  string(code),
		"error": message,
	})
}
