package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"scan-relay/internal/metrics"
)

// NewRouter wires the API routes; metricsHandler is mounted on /metrics when non-nil
func NewRouter(scans *ScanHandler, settings *SettingsHandler, metricsHandler http.Handler) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	// Full paths on the root router; a method mismatch answers 405
	r.HandleFunc("/api/decode", metrics.Instrument("decode", scans.HandleDecode)).Methods("POST")
	r.HandleFunc("/api/scans", metrics.Instrument("list_scans", scans.HandleList)).Methods("GET")
	r.HandleFunc("/api/scans", metrics.Instrument("clear_scans", scans.HandleClear)).Methods("DELETE")
	r.HandleFunc("/api/settings", metrics.Instrument("get_settings", settings.HandleGet)).Methods("GET")
	r.HandleFunc("/api/settings", metrics.Instrument("update_settings", settings.HandleUpdate)).Methods("PUT")

	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler).Methods("GET")
	}

	return r
}
