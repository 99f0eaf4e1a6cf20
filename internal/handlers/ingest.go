package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"time"

	"thermoguard/internal/logger"
	"thermoguard/internal/metrics"
	"thermoguard/internal/models"
	"thermoguard/internal/worker"
)

// Submitter accepts reading envelopes for evaluation.
type Submitter interface {
	Submit(ctx context.Context, env *models.Envelope) error
}

// IngestHandler is the HTTP push path: backend webhooks post change events
// or rows to it.
type IngestHandler struct {
	sink Submitter

	// Max body size (default 1MB)
	maxBodySize int64

	now func() time.Time
}

// IngestConfig holds configuration for the ingest handler
type IngestConfig struct {
	Sink        Submitter
	MaxBodySize int64
}

// NewIngestHandler creates a new ingest handler
func NewIngestHandler(cfg IngestConfig) *IngestHandler {
	maxBodySize := cfg.MaxBodySize
	if maxBodySize <= 0 {
		maxBodySize = 1 << 20
	}

	return &IngestHandler{
		sink:        cfg.Sink,
		maxBodySize: maxBodySize,
		now:         time.Now,
	}
}

// IngestResponse is the response returned to clients
type IngestResponse struct {
	Success  bool          `json:"success"`
	Accepted int           `json:"accepted"`
	Rejected int           `json:"rejected"`
	Errors   []IngestError `json:"errors,omitempty"`
}

// IngestError describes why a specific row was rejected
type IngestError struct {
	Index int    `json:"index"`
	RowID int64  `json:"row_id,omitempty"`
	Error string `json:"error"`
}

// ServeHTTP handles the ingest HTTP request
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if !acceptsJSON(r.Header.Get("Content-Type")) {
		writeError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	rows, err := models.ParseRows(body)
	if err != nil {
		metrics.ReadingsReceivedTotal.WithLabelValues(string(models.PathHTTP), "rejected").Inc()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(rows) == 0 {
		writeError(w, http.StatusBadRequest, "no rows provided")
		return
	}

	response, queueFull := h.processRows(r.Context(), rows)

	status := http.StatusOK
	switch {
	case response.Accepted > 0:
	case queueFull == response.Rejected:
		status = http.StatusServiceUnavailable
	default:
		status = http.StatusBadRequest
	}
	writeJSON(w, status, response)
}

// processRows converts each row to a reading and submits it. It returns the
// number of rows rejected because the queue was full.
func (h *IngestHandler) processRows(ctx context.Context, rows []models.SensorRow) (IngestResponse, int) {
	log := logger.WithComponent("ingest_handler")
	response := IngestResponse{}
	queueFull := 0
	now := h.now()

	reject := func(i int, row models.SensorRow, err error) {
		metrics.ReadingsReceivedTotal.WithLabelValues(string(models.PathHTTP), "rejected").Inc()
		response.Errors = append(response.Errors, IngestError{Index: i, RowID: row.ID, Error: err.Error()})
		response.Rejected++
	}

	for i, row := range rows {
		reading, err := row.ToReading(now)
		if err != nil {
			reject(i, row, err)
			continue
		}

		if err := h.sink.Submit(ctx, models.NewEnvelope(reading, models.PathHTTP)); err != nil {
			if errors.Is(err, worker.ErrQueueFull) {
				queueFull++
				err = errors.New("internal queue full, try again later")
			}
			log.Warn().Err(err).Int64("row_id", row.ID).Msg("failed to submit reading")
			reject(i, row, err)
			continue
		}
		metrics.ReadingsReceivedTotal.WithLabelValues(string(models.PathHTTP), "accepted").Inc()
		response.Accepted++
	}

	response.Success = response.Rejected == 0
	return response, queueFull
}

// acceptsJSON allows an absent content type and application/json with any
// parameters, e.g. charset=utf-8.
func acceptsJSON(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "application/json"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes an error response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
