package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cypherlabdev/market-signals-service/internal/service"
)

// SignalsHandler handles HTTP requests for derived trading signals
type SignalsHandler struct {
	service *service.SignalService
	logger  zerolog.Logger
}

// NewSignalsHandler creates a new signals HTTP handler
func NewSignalsHandler(service *service.SignalService, logger zerolog.Logger) *SignalsHandler {
	return &SignalsHandler{
		service: service,
		logger:  logger.With().Str("component", "signals_handler").Logger(),
	}
}

// RegisterRoutes registers HTTP routes with the provided mux
func (h *SignalsHandler) RegisterRoutes(mux *http.ServeMux) {
	// GET /api/v1/events/:event_id/{signals,regime,propagation,clv}
	mux.HandleFunc("/api/v1/events/", h.handleEventResource)
}

// handleEventResource handles GET /api/v1/events/:event_id/:resource
func (h *SignalsHandler) handleEventResource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.errorResponse(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/v1/events/")
	parts := strings.Split(path, "/")

	if len(parts) != 2 || parts[0] == "" {
		h.errorResponse(w, http.StatusBadRequest, "invalid path: expected /api/v1/events/:event_id/:resource")
		return
	}

	eventID := parts[0]
	resource := parts[1]

	var (
		payload interface{}
		err     error
	)
	switch resource {
	case "signals":
		payload, err = h.service.GetEventSignals(r.Context(), eventID)
	case "regime":
		payload, err = h.service.GetEventRegime(r.Context(), eventID)
	case "propagation":
		payload, err = h.service.GetEventPropagation(r.Context(), eventID)
	case "clv":
		payload, err = h.service.GetEventClv(r.Context(), eventID)
	default:
		h.errorResponse(w, http.StatusNotFound, "unknown resource: "+resource)
		return
	}

	if err != nil {
		h.logger.Error().
			Err(err).
			Str("event_id", eventID).
			Str("resource", resource).
			Msg("failed to retrieve event resource")
		h.errorResponse(w, http.StatusInternalServerError, "failed to retrieve "+resource)
		return
	}

	h.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"event_id": eventID,
		resource:   payload,
	})
}

// jsonResponse writes a JSON response
func (h *SignalsHandler) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error().Err(err).Msg("failed to encode JSON response")
	}
}

// errorResponse writes a JSON error response
func (h *SignalsHandler) errorResponse(w http.ResponseWriter, status int, message string) {
	h.jsonResponse(w, status, map[string]string{
		"error": message,
	})
}
