package scan

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"scan-relay/internal/models"
)

// ErrEventNotFound is returned when a status update targets an unknown event id
var ErrEventNotFound = errors.New("scan event not found")

// Store is the ordered, UI-visible log of scan events.
// Iteration order is newest first; status updates never reorder.
type Store struct {
	mu         sync.RWMutex
	events     []models.ScanEvent // insertion order, oldest first
	index      map[string]int
	totalScans int
	newID      func() string
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		index: make(map[string]int),
		newID: uuid.NewString,
	}
}

// Insert creates a Pending event and places it at the head of the collection
func (s *Store) Insert(code string, capturedAt time.Time, scanType models.ScanType) models.ScanEvent {
	event := models.ScanEvent{
		ID:         s.newID(),
		Code:       code,
		CapturedAt: capturedAt,
		ScanType:   scanType,
		Status:     models.StatusPending,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.index[event.ID] = len(s.events)
	s.events = append(s.events, event)
	s.totalScans++
	return event
}

// UpdateStatus moves the event with the given id to status.
// Unknown ids leave the store untouched and return ErrEventNotFound.
func (s *Store) UpdateStatus(id string, status models.ScanStatus) (models.ScanEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return models.ScanEvent{}, ErrEventNotFound
	}
	s.events[i].Status = status
	return s.events[i], nil
}

// Get returns the event with the given id
func (s *Store) Get(id string) (models.ScanEvent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[id]
	if !ok {
		return models.ScanEvent{}, false
	}
	return s.events[i], true
}

// List returns up to limit events, newest first. A non-positive limit returns all.
func (s *Store) List(limit int) []models.ScanEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.events)
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]models.ScanEvent, 0, limit)
	for i := n - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.events[i])
	}
	return out
}

// Len returns the number of events currently held
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// TotalScans returns the number of accepted scans since the last clear
func (s *Store) TotalScans() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalScans
}

// Clear empties the store and resets the scan counter
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = nil
	s.index = make(map[string]int)
	s.totalScans = 0
}
