package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"scan-relay/config"
	"scan-relay/internal/models"
)

// SettingsManager reads and updates the relay settings
type SettingsManager interface {
	Get() models.Settings
	Update(u models.SettingsUpdate) (models.Settings, error)
}

// SettingsHandler exposes the relay settings
type SettingsHandler struct {
	settings SettingsManager
}

func NewSettingsHandler(settings SettingsManager) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

func (h *SettingsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.settings.Get())
}

// HandleUpdate applies a partial update; omitted fields are left unchanged
func (h *SettingsHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var update models.SettingsUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	settings, err := h.settings.Update(update)
	if errors.Is(err, config.ErrInvalidSettings) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		logrus.WithError(err).Error("failed to update settings")
		http.Error(w, "Failed to save settings", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, settings)
}
