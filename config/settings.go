package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"scan-relay/internal/delivery"
	"scan-relay/internal/models"
)

// ErrInvalidSettings wraps every validation failure from Update
var ErrInvalidSettings = errors.New("invalid settings")

// SettingsStore holds the user-editable relay settings and persists them as JSON.
// It is the configuration provider read by the dispatcher at send time.
type SettingsStore struct {
	mu       sync.RWMutex
	path     string
	settings models.Settings
}

// DefaultSettings builds the initial settings from env config
func DefaultSettings(cfg *Config) models.Settings {
	scanType := models.ScanType(cfg.DefaultScanType)
	if !scanType.Valid() {
		scanType = models.ScanTypeNormal
	}
	return models.Settings{
		EndpointURL: cfg.ScanEndpointURL,
		DeviceInfo:  cfg.DeviceInfo,
		ScanType:    scanType,
		AppMode:     models.AppModeScanner,
	}
}

// NewSettingsStore loads settings from path, or seeds it with defaults when the file
// does not exist yet. An empty path keeps settings in memory only.
func NewSettingsStore(path string, defaults models.Settings) (*SettingsStore, error) {
	s := &SettingsStore{path: path, settings: defaults}
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		if err := s.save(); err != nil {
			return nil, err
		}
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	if err := json.Unmarshal(data, &s.settings); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", path, err)
	}
	if !s.settings.ScanType.Valid() {
		s.settings.ScanType = defaults.ScanType
	}
	if !s.settings.AppMode.Valid() {
		s.settings.AppMode = models.AppModeScanner
	}
	return s, nil
}

// GetEndpointURL returns the current destination URL, possibly empty
func (s *SettingsStore) GetEndpointURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.EndpointURL
}

// GetDeviceInfo returns the device description sent with every payload
func (s *SettingsStore) GetDeviceInfo() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.DeviceInfo
}

// GetScanType returns the default scan type for decodes that carry none
func (s *SettingsStore) GetScanType() models.ScanType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.ScanType
}

// Get returns a snapshot of all settings
func (s *SettingsStore) Get() models.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Update applies a partial change after validating it. Nothing is changed when
// validation fails; a persistence failure rolls the change back.
func (s *SettingsStore) Update(u models.SettingsUpdate) (models.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.settings
	if u.EndpointURL != nil {
		endpoint := strings.TrimSpace(*u.EndpointURL)
		if endpoint != "" {
			if err := delivery.ValidateEndpoint(endpoint); err != nil {
				return s.settings, fmt.Errorf("%w: endpoint_url: %v", ErrInvalidSettings, err)
			}
		}
		next.EndpointURL = endpoint
	}
	if u.DeviceInfo != nil {
		next.DeviceInfo = strings.TrimSpace(*u.DeviceInfo)
	}
	if u.ScanType != nil {
		if !u.ScanType.Valid() {
			return s.settings, fmt.Errorf("%w: unknown scan_type %q", ErrInvalidSettings, *u.ScanType)
		}
		next.ScanType = *u.ScanType
	}
	if u.TorchEnabled != nil {
		next.TorchEnabled = *u.TorchEnabled
	}
	if u.AppMode != nil {
		if !u.AppMode.Valid() {
			return s.settings, fmt.Errorf("%w: unknown app_mode %q", ErrInvalidSettings, *u.AppMode)
		}
		next.AppMode = *u.AppMode
	}

	prev := s.settings
	s.settings = next
	if err := s.save(); err != nil {
		s.settings = prev
		return prev, err
	}

	logrus.WithFields(logrus.Fields{
		"endpoint_url": next.EndpointURL,
		"scan_type":    next.ScanType,
		"app_mode":     next.AppMode,
	}).Info("settings updated")
	return next, nil
}

// save writes settings atomically; callers hold the lock
func (s *SettingsStore) save() error {
	if s.path == "" {
		return nil
	}

	data, err := json.MarshalIndent(s.settings, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create settings dir: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}
