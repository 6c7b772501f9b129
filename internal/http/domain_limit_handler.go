package http

import (
	"context"
	"net/http"

	"github.com/Notifuse/outreach/internal/domain"
	"github.com/Notifuse/outreach/pkg/logger"
)

// DomainLimitChecker reports what each recipient domain can take right now
type DomainLimitChecker interface {
	CheckLimits(ctx context.Context, requested map[string]int) (map[string]*domain.AdmissionDecision, error)
}

type CheckDomainLimitsRequest struct {
	Requested map[string]int `json:"requested"`
}

type DomainLimitHandler struct {
	limiter DomainLimitChecker
	logger  logger.Logger
}

func NewDomainLimitHandler(limiter DomainLimitChecker, logger logger.Logger) *DomainLimitHandler {
	return &DomainLimitHandler{limiter: limiter, logger: logger}
}

func (h *DomainLimitHandler) RegisterRoutes(mux *http.ServeMux, protect func(http.Handler) http.Handler) {
	mux.Handle("/api/domain_limits.check", protect(http.HandlerFunc(h.handleCheck)))
}

// handleCheck is read only, nothing is reserved for the caller
func (h *DomainLimitHandler) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req CheckDomainLimitsRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if len(req.Requested) == 0 {
		WriteJSONError(w, "requested is required", http.StatusBadRequest)
		return
	}

	decisions, err := h.limiter.CheckLimits(r.Context(), req.Requested)
	if err != nil {
		writeServiceError(w, h.logger, "check domain limits", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"decisions": decisions,
	})
}
