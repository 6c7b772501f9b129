package http

import (
	"context"
	"net/http"

	"github.com/Notifuse/outreach/internal/domain"
	"github.com/Notifuse/outreach/internal/service/queue"
	"github.com/Notifuse/outreach/pkg/logger"
)

// Enqueuer turns a contact list into scheduled queue items
type Enqueuer interface {
	Enqueue(ctx context.Context, req domain.EnqueueRequest) (*domain.EnqueueResult, error)
}

// DeliveryRunner runs one bounded delivery pass and reports its transport guards
type DeliveryRunner interface {
	RunOnce(ctx context.Context) (*domain.DeliveryResult, error)
	TransportStats() queue.TransportStats
}

// LeaseReaper returns items held by vanished workers
type LeaseReaper interface {
	RunOnce(ctx context.Context) (*domain.ReapResult, error)
}

// QueueReader is the read side of the send queue
type QueueReader interface {
	GetByID(ctx context.Context, id string) (*domain.QueueItem, error)
	GetStats(ctx context.Context, campaignID string) (*domain.QueueStats, error)
}

// QueueHandler exposes the send queue: enqueue, manual trigger, reaper and stats
type QueueHandler struct {
	enqueuer Enqueuer
	worker   DeliveryRunner
	reaper   LeaseReaper
	queue    QueueReader
	logger   logger.Logger
}

func NewQueueHandler(enqueuer Enqueuer, worker DeliveryRunner, reaper LeaseReaper, queue QueueReader, logger logger.Logger) *QueueHandler {
	return &QueueHandler{
		enqueuer: enqueuer,
		worker:   worker,
		reaper:   reaper,
		queue:    queue,
		logger:   logger,
	}
}

// RegisterRoutes registers the queue routes behind the given middleware
func (h *QueueHandler) RegisterRoutes(mux *http.ServeMux, protect func(http.Handler) http.Handler) {
	mux.Handle("/api/queue.enqueue", protect(http.HandlerFunc(h.handleEnqueue)))
	mux.Handle("/api/queue.run", protect(http.HandlerFunc(h.handleRun)))
	mux.Handle("/api/queue.reap", protect(http.HandlerFunc(h.handleReap)))
	mux.Handle("/api/queue.stats", protect(http.HandlerFunc(h.handleStats)))
	mux.Handle("/api/queue.get", protect(http.HandlerFunc(h.handleGet)))
}

func (h *QueueHandler) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req domain.EnqueueRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	result, err := h.enqueuer.Enqueue(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.logger, "enqueue contacts", err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *QueueHandler) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result, err := h.worker.RunOnce(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "run delivery", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *QueueHandler) handleReap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result, err := h.reaper.RunOnce(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "reap expired leases", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *QueueHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}

	stats, err := h.queue.GetStats(r.Context(), r.URL.Query().Get("campaign_id"))
	if err != nil {
		writeServiceError(w, h.logger, "get queue stats", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"stats":     stats,
		"transport": h.worker.TransportStats(),
	})
}

func (h *QueueHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		WriteJSONError(w, "id is required", http.StatusBadRequest)
		return
	}

	item, err := h.queue.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, "get queue item", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"item": item,
	})
}
