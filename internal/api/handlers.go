package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/savegress/dbpulse/internal/anomaly"
	"github.com/savegress/dbpulse/internal/baseline"
	"github.com/savegress/dbpulse/internal/catalog"
	"github.com/savegress/dbpulse/internal/storage"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	catalog    catalog.Catalog
	calculator *baseline.Calculator
	detector   *anomaly.Detector
	manager    *anomaly.Manager
	baselines  storage.BaselineStore
	recorder   storage.SampleRecorder
}

// Response helpers

type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{Success: false, Error: message})
}

// HealthCheck returns the health status
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// ListMetrics returns the monitored metric catalog
func (h *Handlers) ListMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"metrics": h.catalog,
		"count":   len(h.catalog),
	})
}

// OpenAnomalies returns unresolved anomalies for an instance
func (h *Handlers) OpenAnomalies(w http.ResponseWriter, r *http.Request) {
	instance := chi.URLParam(r, "instance")

	anomalies, err := h.manager.Open(r.Context(), instance)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"anomalies": anomalies,
		"count":     len(anomalies),
	})
}

// AnomalyHistory returns anomalies within a lookback window
func (h *Handlers) AnomalyHistory(w http.ResponseWriter, r *http.Request) {
	instance := chi.URLParam(r, "instance")

	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid hours parameter")
			return
		}
		hours = parsed
	}

	anomalies, err := h.manager.History(r.Context(), instance, hours)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"anomalies": anomalies,
		"count":     len(anomalies),
		"hours":     hours,
	})
}

// AnomalySummary returns open anomaly counts by severity
func (h *Handlers) AnomalySummary(w http.ResponseWriter, r *http.Request) {
	instance := chi.URLParam(r, "instance")

	summary, err := h.manager.Summary(r.Context(), instance)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// AcknowledgeAnomaly marks an anomaly as acknowledged
func (h *Handlers) AcknowledgeAnomaly(w http.ResponseWriter, r *http.Request) {
	instance := chi.URLParam(r, "instance")
	id := chi.URLParam(r, "id")

	var req struct {
		User string `json:"user"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.User == "" {
		writeError(w, http.StatusBadRequest, "user is required")
		return
	}

	if err := h.manager.Acknowledge(r.Context(), instance, id, req.User); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "acknowledged"})
}

// ResolveAnomaly marks an anomaly as resolved
func (h *Handlers) ResolveAnomaly(w http.ResponseWriter, r *http.Request) {
	instance := chi.URLParam(r, "instance")
	id := chi.URLParam(r, "id")

	var req struct {
		Notes string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.manager.Resolve(r.Context(), instance, id, req.Notes); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "resolved"})
}

// GetBaseline returns a stored baseline. Query params hour and day
// select a seasonal bucket; without them the overall bucket is
// returned.
func (h *Handlers) GetBaseline(w http.ResponseWriter, r *http.Request) {
	instance := chi.URLParam(r, "instance")
	metric := chi.URLParam(r, "metric")

	var hourOfDay, dayOfWeek *int
	if v := r.URL.Query().Get("hour"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 || parsed > 23 {
			writeError(w, http.StatusBadRequest, "invalid hour parameter")
			return
		}
		hourOfDay = &parsed
	}
	if v := r.URL.Query().Get("day"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 || parsed > 6 {
			writeError(w, http.StatusBadRequest, "invalid day parameter")
			return
		}
		dayOfWeek = &parsed
	}
	if hourOfDay != nil && dayOfWeek != nil {
		writeError(w, http.StatusBadRequest, "hour and day are mutually exclusive")
		return
	}

	b, err := h.baselines.FindBaseline(r.Context(), instance, metric, hourOfDay, dayOfWeek)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if b == nil {
		writeError(w, http.StatusNotFound, "baseline not found")
		return
	}

	writeJSON(w, http.StatusOK, b)
}

// CalculateBaselines triggers a baseline recalculation run
func (h *Handlers) CalculateBaselines(w http.ResponseWriter, r *http.Request) {
	instance := chi.URLParam(r, "instance")

	stored, failed := h.calculator.CalculateBaselines(r.Context(), instance)
	writeJSON(w, http.StatusOK, map[string]int{
		"stored": stored,
		"failed": failed,
	})
}

// RunDetection triggers a detection pass and returns its anomalies
func (h *Handlers) RunDetection(w http.ResponseWriter, r *http.Request) {
	instance := chi.URLParam(r, "instance")

	anomalies := h.detector.DetectAnomalies(r.Context(), instance)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"anomalies": anomalies,
		"count":     len(anomalies),
	})
}

// IngestSample records one metric sample for an instance
func (h *Handlers) IngestSample(w http.ResponseWriter, r *http.Request) {
	instance := chi.URLParam(r, "instance")

	var req struct {
		Metric    string     `json:"metric"`
		Value     float64    `json:"value"`
		Timestamp *time.Time `json:"timestamp,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Metric == "" {
		writeError(w, http.StatusBadRequest, "metric is required")
		return
	}
	if !h.catalog.Contains(req.Metric) {
		writeError(w, http.StatusBadRequest, "unknown metric")
		return
	}

	ts := time.Now().UTC()
	if req.Timestamp != nil {
		ts = *req.Timestamp
	}

	if err := h.recorder.RecordSample(r.Context(), instance, req.Metric, req.Value, ts); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"status": "recorded"})
}
