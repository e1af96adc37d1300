// Package handlers provides HTTP handlers for API endpoints
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"scan-relay/internal/models"
	"scan-relay/internal/services"
)

const defaultListLimit = 50

// ScanHandler handles decode ingestion and history requests
type ScanHandler struct {
	service services.ScanProcessor
}

// NewScanHandler creates a new scan handler
func NewScanHandler(service services.ScanProcessor) *ScanHandler {
	return &ScanHandler{service: service}
}

// HandleDecode accepts one decoded string from a networked scanner
func (h *ScanHandler) HandleDecode(w http.ResponseWriter, r *http.Request) {
	var req models.DecodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	event, err := h.service.Submit(r.Context(), req.Code, req.ScanType)
	switch {
	case errors.Is(err, services.ErrEmptyCode):
		http.Error(w, "code is required", http.StatusBadRequest)
		return
	case errors.Is(err, services.ErrDuplicate):
		writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
		return
	case err != nil:
		logrus.WithError(err).Error("failed to submit scan")
		http.Error(w, "Scan service unavailable", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusAccepted, event)
}

// scanListResponse is the history view returned by HandleList
type scanListResponse struct {
	Items      []models.ScanEvent `json:"items"`
	TotalScans int                `json:"total_scans"`
	Pending    int                `json:"pending"`
}

// HandleList returns scan events, newest first
func (h *ScanHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	items := h.service.List(limit)
	if items == nil {
		items = []models.ScanEvent{}
	}
	writeJSON(w, http.StatusOK, scanListResponse{
		Items:      items,
		TotalScans: h.service.TotalScans(),
		Pending:    h.service.Pending(),
	})
}

// HandleClear empties the scan history
func (h *ScanHandler) HandleClear(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Clear(r.Context()); err != nil {
		logrus.WithError(err).Error("failed to clear scans")
		http.Error(w, "Scan service unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Warn("failed to write response")
	}
}
