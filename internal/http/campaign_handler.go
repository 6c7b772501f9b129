package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Notifuse/outreach/internal/domain"
	"github.com/Notifuse/outreach/internal/service/campaign"
	"github.com/Notifuse/outreach/pkg/logger"
)

// CampaignService is the campaign surface the handler depends on
type CampaignService interface {
	Create(ctx context.Context, c *domain.Campaign) (*domain.Campaign, error)
	Get(ctx context.Context, id string) (*domain.Campaign, error)
	List(ctx context.Context, activeOnly bool) ([]*domain.Campaign, error)
	Pause(ctx context.Context, id string) (*domain.Campaign, error)
	Resume(ctx context.Context, id string) (*domain.Campaign, error)
	Cancel(ctx context.Context, id string) (int64, error)
	Advance(ctx context.Context, id string) (*campaign.AdvanceResult, error)
	UpdateMetrics(ctx context.Context, id string, metrics domain.WarmupMetrics) (*domain.Campaign, error)
	TargetRate(ctx context.Context, id string) (*campaign.WarmupStatus, error)
	PreviewSegment(ctx context.Context, criteria domain.SegmentCriteria) (int, error)
}

type CampaignIDRequest struct {
	ID string `json:"id"`
}

type UpdateMetricsRequest struct {
	ID      string               `json:"id"`
	Metrics domain.WarmupMetrics `json:"metrics"`
}

type PreviewSegmentRequest struct {
	Criteria domain.SegmentCriteria `json:"criteria"`
}

type CampaignHandler struct {
	service CampaignService
	logger  logger.Logger
}

func NewCampaignHandler(service CampaignService, logger logger.Logger) *CampaignHandler {
	return &CampaignHandler{service: service, logger: logger}
}

func (h *CampaignHandler) RegisterRoutes(mux *http.ServeMux, protect func(http.Handler) http.Handler) {
	mux.Handle("/api/campaigns.create", protect(http.HandlerFunc(h.handleCreate)))
	mux.Handle("/api/campaigns.get", protect(http.HandlerFunc(h.handleGet)))
	mux.Handle("/api/campaigns.list", protect(http.HandlerFunc(h.handleList)))
	mux.Handle("/api/campaigns.pause", protect(http.HandlerFunc(h.handlePause)))
	mux.Handle("/api/campaigns.resume", protect(http.HandlerFunc(h.handleResume)))
	mux.Handle("/api/campaigns.advance", protect(http.HandlerFunc(h.handleAdvance)))
	mux.Handle("/api/campaigns.cancel", protect(http.HandlerFunc(h.handleCancel)))
	mux.Handle("/api/campaigns.metrics", protect(http.HandlerFunc(h.handleMetrics)))
	mux.Handle("/api/campaigns.warmup", protect(http.HandlerFunc(h.handleWarmup)))
	mux.Handle("/api/segments.preview", protect(http.HandlerFunc(h.handlePreview)))
}

func (h *CampaignHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var c domain.Campaign
	if !decodeJSONBody(w, r, &c) {
		return
	}

	created, err := h.service.Create(r.Context(), &c)
	if err != nil {
		writeServiceError(w, h.logger, "create campaign", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"campaign": created,
	})
}

func (h *CampaignHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		WriteJSONError(w, "id is required", http.StatusBadRequest)
		return
	}

	c, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, "get campaign", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"campaign": c,
	})
}

func (h *CampaignHandler) handleList(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}

	activeOnly := false
	if raw := r.URL.Query().Get("active"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			WriteJSONError(w, "active must be a boolean", http.StatusBadRequest)
			return
		}
		activeOnly = parsed
	}

	campaigns, err := h.service.List(r.Context(), activeOnly)
	if err != nil {
		writeServiceError(w, h.logger, "list campaigns", err)
		return
	}
	if campaigns == nil {
		campaigns = []*domain.Campaign{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"campaigns": campaigns,
	})
}

func (h *CampaignHandler) handlePause(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, "pause campaign", h.service.Pause)
}

func (h *CampaignHandler) handleResume(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, "resume campaign", h.service.Resume)
}

func (h *CampaignHandler) toggle(w http.ResponseWriter, r *http.Request, action string, fn func(context.Context, string) (*domain.Campaign, error)) {
	id, ok := decodeCampaignID(w, r)
	if !ok {
		return
	}

	c, err := fn(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, action, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"campaign": c,
	})
}

func (h *CampaignHandler) handleAdvance(w http.ResponseWriter, r *http.Request) {
	id, ok := decodeCampaignID(w, r)
	if !ok {
		return
	}

	result, err := h.service.Advance(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, "advance campaign", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *CampaignHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := decodeCampaignID(w, r)
	if !ok {
		return
	}

	removed, err := h.service.Cancel(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, "cancel campaign", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":         true,
		"removed_batches": removed,
	})
}

func (h *CampaignHandler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var req UpdateMetricsRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.ID == "" {
		WriteJSONError(w, "id is required", http.StatusBadRequest)
		return
	}

	c, err := h.service.UpdateMetrics(r.Context(), req.ID, req.Metrics)
	if err != nil {
		writeServiceError(w, h.logger, "update campaign metrics", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"campaign": c,
	})
}

func (h *CampaignHandler) handleWarmup(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		WriteJSONError(w, "id is required", http.StatusBadRequest)
		return
	}

	status, err := h.service.TargetRate(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, "compute warmup rate", err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *CampaignHandler) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req PreviewSegmentRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	count, err := h.service.PreviewSegment(r.Context(), req.Criteria)
	if err != nil {
		writeServiceError(w, h.logger, "preview segment", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count": count,
	})
}

func decodeCampaignID(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req CampaignIDRequest
	if !decodeJSONBody(w, r, &req) {
		return "", false
	}
	if req.ID == "" {
		WriteJSONError(w, "id is required", http.StatusBadRequest)
		return "", false
	}
	return req.ID, true
}
