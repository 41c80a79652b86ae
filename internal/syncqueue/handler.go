package syncqueue

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/bissquit/inspection-sync/internal/domain"
	"github.com/bissquit/inspection-sync/internal/pkg/ctxlog"
	"github.com/bissquit/inspection-sync/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrNoInspection, Status: http.StatusBadRequest},
}

// Handler exposes the queue and the engine over HTTP.
type Handler struct {
	engine    *Engine
	validator *validator.Validate
	upgrader  websocket.Upgrader
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithOriginPolicy lets the stream accept browser origins other than the
// API's own host.
func WithOriginPolicy(p httputil.OriginPolicy) HandlerOption {
	return func(h *Handler) {
		h.upgrader.CheckOrigin = p.CheckRequest
	}
}

// NewHandler creates a new sync queue handler.
func NewHandler(engine *Engine, opts ...HandlerOption) *Handler {
	h := &Handler{
		engine:    engine,
		validator: httputil.NewValidator(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes registers all HTTP routes for the sync queue.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/queue", func(r chi.Router) {
		r.Get("/", h.ListPending)
		r.Post("/", h.Enqueue)
		r.Delete("/", h.Clear)
		r.Get("/status", h.Status)
	})

	r.Route("/sync", func(r chi.Router) {
		r.Post("/", h.ForceSync)
		r.Post("/now", h.SyncNow)
		r.Get("/stream", h.Stream)
	})
}

// EnqueueResponse is returned after an inspection is queued.
type EnqueueResponse struct {
	ID      string `json:"id"`
	Syncing bool   `json:"syncing"`
}

// StatusResponse combines queue counters with the engine state.
type StatusResponse struct {
	QueueStatus
	Status        Status   `json:"status"`
	Syncing       bool     `json:"syncing"`
	ProcessingIDs []string `json:"processing_ids"`
}

// ListPending handles GET /queue request.
func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	items, err := h.engine.PendingItems(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, items)
}

// Enqueue handles POST /queue request.
func (h *Handler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var insp domain.Inspection
	if err := json.NewDecoder(r.Body).Decode(&insp); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(insp); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	// The engine outlives the request.
	id, err := h.engine.Enqueue(context.WithoutCancel(r.Context()), &insp)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, EnqueueResponse{ID: id, Syncing: h.engine.IsSyncing()})
}

// Clear handles DELETE /queue request.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Clear(r.Context()); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Status handles GET /queue/status request.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	counts, err := h.engine.QueueStatus(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, StatusResponse{
		QueueStatus:   counts,
		Status:        h.engine.Notifier().Status(),
		Syncing:       h.engine.IsSyncing(),
		ProcessingIDs: h.engine.ProcessingIDs(),
	})
}

// ForceSync handles POST /sync request.
func (h *Handler) ForceSync(w http.ResponseWriter, r *http.Request) {
	ctxlog.FromContext(r.Context()).Info("forced sync requested")
	h.engine.ForceSync(context.WithoutCancel(r.Context()))
	httputil.Success(w, http.StatusAccepted, map[string]interface{}{"syncing": h.engine.IsSyncing()})
}

// SyncNow handles POST /sync/now request.
func (h *Handler) SyncNow(w http.ResponseWriter, r *http.Request) {
	res := h.engine.SyncNow(context.WithoutCancel(r.Context()))
	httputil.Success(w, syncNowStatus(res.Outcome), res)
}

func syncNowStatus(o SyncNowOutcome) int {
	switch o {
	case SyncNowAlreadyRunning, SyncNowItemLocked:
		return http.StatusConflict
	case SyncNowOffline:
		return http.StatusServiceUnavailable
	case SyncNowFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}
