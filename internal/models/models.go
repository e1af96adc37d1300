// Package models contains data structures for the application
package models

import (
	"time"
)

// ScanStatus is the delivery state of a scan event
type ScanStatus string

const (
	StatusPending   ScanStatus = "pending"
	StatusInFlight  ScanStatus = "in_flight"
	StatusDelivered ScanStatus = "delivered"
	StatusFailed    ScanStatus = "failed"
)

// Terminal reports whether no further transition is expected
func (s ScanStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusFailed
}

// ScanType tags the UI action that triggered scanning
type ScanType string

const (
	ScanTypeNormal    ScanType = "normal"
	ScanTypeEmergency ScanType = "emergency"
)

// Valid reports whether t is a known scan type
func (t ScanType) Valid() bool {
	return t == ScanTypeNormal || t == ScanTypeEmergency
}

// ScanEvent represents one deduplicated physical scan and its delivery state
type ScanEvent struct {
	ID         string     `json:"id"`
	Code       string     `json:"code"`
	CapturedAt time.Time  `json:"captured_at"`
	ScanType   ScanType   `json:"scan_type"`
	Status     ScanStatus `json:"status"`
}

// DeliveryPayload is the JSON body posted to the scan endpoint
type DeliveryPayload struct {
	Code       string   `json:"code"`
	Timestamp  float64  `json:"timestamp"` // seconds since epoch, fractional
	DeviceInfo string   `json:"device_info"`
	Type       ScanType `json:"type,omitempty"`
}

// NewDeliveryPayload builds the wire payload for an event
func NewDeliveryPayload(event ScanEvent, deviceInfo string) DeliveryPayload {
	return DeliveryPayload{
		Code:       event.Code,
		Timestamp:  float64(event.CapturedAt.UnixNano()) / float64(time.Second),
		DeviceInfo: deviceInfo,
		Type:       event.ScanType,
	}
}

// DecodeRequest represents a decoded string pushed by a networked scanner
type DecodeRequest struct {
	Code     string   `json:"code"`
	ScanType ScanType `json:"scan_type"`
}

// AppMode selects which client surface the device presents
type AppMode string

const (
	AppModeScanner AppMode = "scanner"
	AppModeAdmin   AppMode = "admin"
	AppModeAnchor  AppMode = "anchor"
)

// Valid reports whether m is a known app mode
func (m AppMode) Valid() bool {
	switch m {
	case AppModeScanner, AppModeAdmin, AppModeAnchor:
		return true
	}
	return false
}

// Settings are the user-editable, persisted relay settings
type Settings struct {
	EndpointURL  string   `json:"endpoint_url"`
	DeviceInfo   string   `json:"device_info"`
	ScanType     ScanType `json:"scan_type"`
	TorchEnabled bool     `json:"torch_enabled"`
	AppMode      AppMode  `json:"app_mode"`
}

// SettingsUpdate is a partial settings change; nil fields are left untouched
type SettingsUpdate struct {
	EndpointURL  *string   `json:"endpoint_url"`
	DeviceInfo   *string   `json:"device_info"`
	ScanType     *ScanType `json:"scan_type"`
	TorchEnabled *bool     `json:"torch_enabled"`
	AppMode      *AppMode  `json:"app_mode"`
}

// ScanRecord is a terminal scan event as mirrored to durable history
type ScanRecord struct {
	ScanEvent
	DeviceInfo    string `json:"device_info"`
	LatencyMs     int64  `json:"latency_ms"`
	FailureReason string `json:"failure_reason,omitempty"`
}
