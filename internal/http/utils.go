package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/Notifuse/outreach/internal/domain"
	"github.com/Notifuse/outreach/internal/service/campaign"
	"github.com/Notifuse/outreach/pkg/logger"
)

// maxBodyBytes bounds request bodies; enqueue payloads carry full contact lists
const maxBodyBytes = 10 << 20

// WriteJSONError writes a JSON error response with the given message and status code.
// It sets the Content-Type header to application/json and automatically formats
// the response as {"error": "message"}.
func WriteJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// writeJSON writes a JSON response with the given status code and data.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSONBody rejects anything but a POST with a well formed JSON body
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if r.Method != http.MethodPost {
		WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		WriteJSONError(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// requireGet writes 405 for anything but GET
func requireGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// writeServiceError maps service errors to status codes:
// validation 400, not found 404, paused campaign 409, anything else 500.
func writeServiceError(w http.ResponseWriter, log logger.Logger, action string, err error) {
	if domain.IsValidationError(err) {
		WriteJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if campaign.IsNotFound(err) {
		WriteJSONError(w, err.Error(), http.StatusNotFound)
		return
	}

	var campaignErr *campaign.CampaignError
	if errors.As(err, &campaignErr) && campaignErr.Code == campaign.ErrCodeCampaignPaused {
		WriteJSONError(w, err.Error(), http.StatusConflict)
		return
	}

	log.WithField("error", err.Error()).Error(fmt.Sprintf("Failed to %s", action))
	WriteJSONError(w, fmt.Sprintf("Failed to %s", action), http.StatusInternalServerError)
}
