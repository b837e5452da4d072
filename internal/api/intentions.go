package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/intentions-server/internal/config"
	"github.com/ashureev/intentions-server/internal/intentions"
	"github.com/ashureev/intentions-server/internal/metrics"
	"github.com/go-chi/chi/v5"
)

// IntentionsPath is the route the task frontend posts trial data to.
const IntentionsPath = "/task/intentions"

// IntentionsHandler serves the intentions task endpoint.
type IntentionsHandler struct {
	svc              *intentions.Service
	metrics          *metrics.Metrics
	maxBodyBytes     int64
	validationStatus int
}

// NewIntentionsHandler creates a new intentions handler. m may be nil.
func NewIntentionsHandler(svc *intentions.Service, cfg *config.Config, m *metrics.Metrics) *IntentionsHandler {
	if cfg == nil {
		cfg = config.Default()
	}
	return &IntentionsHandler{
		svc:              svc,
		metrics:          m,
		maxBodyBytes:     cfg.MaxRequestBodyBytes,
		validationStatus: cfg.ValidationErrorStatus,
	}
}

// RegisterRoutes registers the intentions route.
func (h *IntentionsHandler) RegisterRoutes(r chi.Router) {
	r.Post(IntentionsPath, h.Intentions)
}

// Intentions fits the model to a participant's trials and returns the
// generated partner.
func (h *IntentionsHandler) Intentions(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)

	req, err := intentions.DecodeRequest(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.fail(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		slog.Warn("Invalid intentions request", "error", err)
		h.fail(w, h.validationStatus, err.Error())
		return
	}

	resp, err := h.svc.Handle(r.Context(), req)
	if err != nil {
		slog.Error("Intentions request failed", "participant_id", req.ParticipantID, "error", err)
		h.fail(w, http.StatusInternalServerError, intentions.ErrModelInvocation.Error())
		return
	}

	h.metrics.ObserveRequest(http.StatusOK)
	JSON(w, http.StatusOK, resp)
}

func (h *IntentionsHandler) fail(w http.ResponseWriter, status int, message string) {
	h.metrics.ObserveRequest(status)
	Error(w, status, message)
}
