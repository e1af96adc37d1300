// Package repository defines the durable mirrors of scan history
package repository

import (
	"context"

	"scan-relay/internal/models"
)

// ScanHistoryRepository defines the interface for scan history persistence
type ScanHistoryRepository interface {
	// Save records a scan event that reached a terminal status
	Save(ctx context.Context, record *models.ScanRecord) error
	// List returns up to limit records, most recently captured first
	List(ctx context.Context, limit int) ([]models.ScanRecord, error)
}

// ScanFeedPublisher defines the interface for streaming terminal scan events
type ScanFeedPublisher interface {
	Publish(ctx context.Context, record models.ScanRecord) error
}
