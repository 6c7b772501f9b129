package http

import (
	"context"
	"net/http"
	"time"

	"github.com/Notifuse/outreach/pkg/logger"
)

// Pinger is anything the health check can probe, the database in practice
type Pinger interface {
	PingContext(ctx context.Context) error
}

type RootHandler struct {
	version string
	db      Pinger
	logger  logger.Logger
}

func NewRootHandler(version string, db Pinger, logger logger.Logger) *RootHandler {
	return &RootHandler{
		version: version,
		db:      db,
		logger:  logger,
	}
}

// Handle answers the catch-all route
func (h *RootHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/api" {
		WriteJSONError(w, "Not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "api running",
		"version": h.version,
	})
}

func (h *RootHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			h.logger.WithField("error", err.Error()).Error("Health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":   "unhealthy",
				"database": "unreachable",
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.version,
	})
}

func (h *RootHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/health", h.handleHealth)
	// catch all route
	mux.HandleFunc("/", h.Handle)
}
