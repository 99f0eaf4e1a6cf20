package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"thermoguard/internal/alerts"
)

// ThresholdSetter reads and replaces the evaluator's thresholds.
type ThresholdSetter interface {
	Thresholds() alerts.Thresholds
	SetThresholds(t alerts.Thresholds) error
	Cooldown() time.Duration
}

// ThresholdsHandler serves GET and PUT /thresholds.
type ThresholdsHandler struct {
	target ThresholdSetter
}

func NewThresholdsHandler(target ThresholdSetter) *ThresholdsHandler {
	return &ThresholdsHandler{target: target}
}

// ThresholdsResponse reports the thresholds in effect.
type ThresholdsResponse struct {
	alerts.Thresholds
	Cooldown string `json:"cooldown"`
}

// ThresholdsUpdate is a partial update; omitted fields keep their value.
type ThresholdsUpdate struct {
	TemperatureLower *float64 `json:"temperature_lower"`
	TemperatureUpper *float64 `json:"temperature_upper"`
	SmokeLimit       *float64 `json:"smoke_limit"`
}

func (h *ThresholdsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.writeCurrent(w, http.StatusOK)
	case http.MethodPut:
		h.update(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *ThresholdsHandler) update(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)

	var req ThresholdsUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	t := h.target.Thresholds()
	if req.TemperatureLower != nil {
		t.TemperatureLower = *req.TemperatureLower
	}
	if req.TemperatureUpper != nil {
		t.TemperatureUpper = *req.TemperatureUpper
	}
	if req.SmokeLimit != nil {
		t.SmokeLimit = *req.SmokeLimit
	}

	if err := h.target.SetThresholds(t); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	h.writeCurrent(w, http.StatusOK)
}

func (h *ThresholdsHandler) writeCurrent(w http.ResponseWriter, status int) {
	writeJSON(w, status, ThresholdsResponse{
		Thresholds: h.target.Thresholds(),
		Cooldown:   h.target.Cooldown().String(),
	})
}
