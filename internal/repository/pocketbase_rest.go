// Package repository provides PocketBase REST API implementations
package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"scan-relay/internal/models"
)

// ScanEventsCollection is the PocketBase collection holding scan history
const ScanEventsCollection = "scan_events"

// PocketBaseScanHistoryRepository implements ScanHistoryRepository
type PocketBaseScanHistoryRepository struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

// NewPocketBaseScanHistoryRepository creates repository
func NewPocketBaseScanHistoryRepository(baseURL, authToken string) *PocketBaseScanHistoryRepository {
	return &PocketBaseScanHistoryRepository{
		baseURL:    strings.TrimRight(baseURL, "/"),
		authToken:  authToken,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *PocketBaseScanHistoryRepository) addAuthHeader(req *http.Request) {
	if r.authToken != "" {
		req.Header.Set("Authorization", r.authToken)
	}
}

// pbScanRecord is the collection record shape
type pbScanRecord struct {
	EventID       string `json:"event_id"`
	Code          string `json:"code"`
	ScanType      string `json:"scan_type"`
	Status        string `json:"status"`
	CapturedAt    string `json:"captured_at"`
	DeviceInfo    string `json:"device_info"`
	LatencyMs     int64  `json:"latency_ms"`
	FailureReason string `json:"failure_reason"`
}

func (r *PocketBaseScanHistoryRepository) Save(ctx context.Context, record *models.ScanRecord) error {
	url := fmt.Sprintf("%s/api/collections/%s/records", r.baseURL, ScanEventsCollection)

	data := pbScanRecord{
		EventID:       record.ID,
		Code:          record.Code,
		ScanType:      string(record.ScanType),
		Status:        string(record.Status),
		CapturedAt:    record.CapturedAt.UTC().Format(time.RFC3339Nano),
		DeviceInfo:    record.DeviceInfo,
		LatencyMs:     record.LatencyMs,
		FailureReason: record.FailureReason,
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode scan record: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	r.addAuthHeader(req)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("failed to save scan event: %s - %s", resp.Status, string(body))
	}

	logrus.WithFields(logrus.Fields{
		"event_id": record.ID,
		"status":   record.Status,
	}).Debug("scan event mirrored to pocketbase")
	return nil
}

func (r *PocketBaseScanHistoryRepository) List(ctx context.Context, limit int) ([]models.ScanRecord, error) {
	if limit <= 0 {
		limit = 30
	}
	url := fmt.Sprintf("%s/api/collections/%s/records?sort=-captured_at&perPage=%d", r.baseURL, ScanEventsCollection, limit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	r.addAuthHeader(req)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to list scan events: %s", resp.Status)
	}

	var result struct {
		Items []pbScanRecord `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	records := make([]models.ScanRecord, 0, len(result.Items))
	for _, item := range result.Items {
		records = append(records, item.toModel())
	}
	return records, nil
}

func (p pbScanRecord) toModel() models.ScanRecord {
	capturedAt, err := parsePocketBaseTime(p.CapturedAt)
	if err != nil {
		logrus.WithError(err).WithField("event_id", p.EventID).Debug("unparseable captured_at")
	}
	return models.ScanRecord{
		ScanEvent: models.ScanEvent{
			ID:         p.EventID,
			Code:       p.Code,
			CapturedAt: capturedAt,
			ScanType:   models.ScanType(p.ScanType),
			Status:     models.ScanStatus(p.Status),
		},
		DeviceInfo:    p.DeviceInfo,
		LatencyMs:     p.LatencyMs,
		FailureReason: p.FailureReason,
	}
}

// parsePocketBaseTime accepts RFC 3339 and PocketBase's "2006-01-02 15:04:05.000Z" date format
func parsePocketBaseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05.000Z", s)
}
