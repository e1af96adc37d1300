// Package services implements business logic for the application
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"scan-relay/internal/delivery"
	"scan-relay/internal/metrics"
	"scan-relay/internal/models"
	"scan-relay/internal/repository"
	"scan-relay/internal/scan"
)

var (
	ErrEmptyCode = errors.New("empty scan code")
	ErrDuplicate = errors.New("duplicate scan within cooldown")
	ErrStopped   = errors.New("scan service stopped")
)

// fanOutTimeout bounds history, feed, and notification side effects per event
const fanOutTimeout = 10 * time.Second

// ScanProcessor defines the interface used by the HTTP and decoder surfaces
type ScanProcessor interface {
	Submit(ctx context.Context, code string, scanType models.ScanType) (models.ScanEvent, error)
	Clear(ctx context.Context) error
	List(limit int) []models.ScanEvent
	TotalScans() int
	Pending() int
}

// Deliverer sends one event and reports its terminal status
type Deliverer interface {
	Deliver(ctx context.Context, event models.ScanEvent) delivery.Result
}

// SettingsProvider supplies the defaults applied to incoming decodes
type SettingsProvider interface {
	GetScanType() models.ScanType
	GetDeviceInfo() string
}

// BotNotifier defines the interface for bot notifications
type BotNotifier interface {
	SendNotification(message string)
}

type submitRequest struct {
	code     string
	scanType models.ScanType
	reply    chan submitReply
}

type submitReply struct {
	event models.ScanEvent
	err   error
}

// ScanService owns the scan pipeline: dedup, store insertion, delivery launch, and
// applying delivery results. All store writes happen on the Run goroutine.
type ScanService struct {
	dedup      *scan.Deduplicator
	store      *scan.Store
	dispatcher Deliverer
	settings   SettingsProvider

	history  repository.ScanHistoryRepository
	feed     repository.ScanFeedPublisher
	notifier BotNotifier
	now      func() time.Time

	submits chan submitRequest
	results chan delivery.Result
	clears  chan chan struct{}
	done    chan struct{}
	pending atomic.Int64
}

// Option configures a ScanService
type Option func(*ScanService)

// WithHistory mirrors terminal events to a durable repository
func WithHistory(repo repository.ScanHistoryRepository) Option {
	return func(s *ScanService) { s.history = repo }
}

// WithFeed publishes terminal events to a stream
func WithFeed(feed repository.ScanFeedPublisher) Option {
	return func(s *ScanService) { s.feed = feed }
}

// WithNotifier reports emergency scan outcomes
func WithNotifier(notifier BotNotifier) Option {
	return func(s *ScanService) { s.notifier = notifier }
}

// WithClock overrides the time source used for capture timestamps and dedup
func WithClock(now func() time.Time) Option {
	return func(s *ScanService) { s.now = now }
}

// NewScanService creates a new scan service; call Run to start processing
func NewScanService(
	dedup *scan.Deduplicator,
	store *scan.Store,
	dispatcher Deliverer,
	settings SettingsProvider,
	opts ...Option,
) *ScanService {
	s := &ScanService{
		dedup:      dedup,
		store:      store,
		dispatcher: dispatcher,
		settings:   settings,
		now:        time.Now,
		submits:    make(chan submitRequest),
		results:    make(chan delivery.Result),
		clears:     make(chan chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run processes submissions and delivery results until ctx is cancelled.
// Deliveries already in flight finish under their own timeout; their results are dropped.
func (s *ScanService) Run(ctx context.Context) {
	defer close(s.done)
	deliverCtx := context.WithoutCancel(ctx)

	logrus.Info("scan service started")
	for {
		select {
		case <-ctx.Done():
			logrus.WithField("in_flight", s.Pending()).Info("scan service stopped")
			return
		case req := <-s.submits:
			event, err := s.accept(deliverCtx, req.code, req.scanType)
			req.reply <- submitReply{event: event, err: err}
		case res := <-s.results:
			s.apply(res)
		case reply := <-s.clears:
			s.store.Clear()
			s.dedup.Reset()
			logrus.Info("scan history cleared")
			close(reply)
		}
	}
}

// Submit feeds one decoded string into the pipeline. It returns the new event,
// already InFlight, or ErrEmptyCode / ErrDuplicate when no event was created.
func (s *ScanService) Submit(ctx context.Context, code string, scanType models.ScanType) (models.ScanEvent, error) {
	metrics.DecodesTotal.Inc()

	code = strings.TrimSpace(code)
	if code == "" {
		return models.ScanEvent{}, ErrEmptyCode
	}
	if !scanType.Valid() {
		scanType = s.settings.GetScanType()
	}

	req := submitRequest{code: code, scanType: scanType, reply: make(chan submitReply, 1)}
	select {
	case s.submits <- req:
	case <-s.done:
		return models.ScanEvent{}, ErrStopped
	case <-ctx.Done():
		return models.ScanEvent{}, ctx.Err()
	}

	reply := <-req.reply
	return reply.event, reply.err
}

// Clear empties the history and forgets the last accepted code
func (s *ScanService) Clear(ctx context.Context) error {
	reply := make(chan struct{})
	select {
	case s.clears <- reply:
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-reply
	return nil
}

// List returns up to limit events, newest first
func (s *ScanService) List(limit int) []models.ScanEvent {
	return s.store.List(limit)
}

// TotalScans returns the number of events created since the last clear
func (s *ScanService) TotalScans() int {
	return s.store.TotalScans()
}

// Pending returns the number of deliveries awaiting a response
func (s *ScanService) Pending() int {
	return int(s.pending.Load())
}

// accept runs on the Run goroutine
func (s *ScanService) accept(ctx context.Context, code string, scanType models.ScanType) (models.ScanEvent, error) {
	capturedAt := s.now()
	if !s.dedup.Accept(code, capturedAt) {
		metrics.DuplicatesTotal.Inc()
		logrus.WithField("code", code).Debug("duplicate scan dropped")
		return models.ScanEvent{}, ErrDuplicate
	}

	event := s.store.Insert(code, capturedAt, scanType)
	metrics.AcceptedTotal.Inc()

	event, err := s.store.UpdateStatus(event.ID, models.StatusInFlight)
	if err != nil {
		return models.ScanEvent{}, err
	}

	logrus.WithFields(logrus.Fields{
		"event_id":  event.ID,
		"code":      code,
		"scan_type": scanType,
	}).Info("scan accepted")

	s.pending.Add(1)
	go func(event models.ScanEvent) {
		res := s.dispatcher.Deliver(ctx, event)
		select {
		case s.results <- res:
		case <-s.done:
			s.pending.Add(-1)
		}
	}(event)

	return event, nil
}

// apply runs on the Run goroutine
func (s *ScanService) apply(res delivery.Result) {
	s.pending.Add(-1)

	event, err := s.store.UpdateStatus(res.EventID, res.Status)
	if errors.Is(err, scan.ErrEventNotFound) {
		logrus.WithField("event_id", res.EventID).Debug("delivery result for cleared event ignored")
		return
	}
	if err != nil {
		logrus.WithError(err).WithField("event_id", res.EventID).Error("failed to apply delivery result")
		return
	}

	record := models.ScanRecord{
		ScanEvent:     event,
		DeviceInfo:    s.settings.GetDeviceInfo(),
		LatencyMs:     res.Latency.Milliseconds(),
		FailureReason: delivery.Reason(res.Err),
	}
	go s.fanOut(record)
}

// fanOut mirrors a terminal event; failures are logged and never change its status
func (s *ScanService) fanOut(record models.ScanRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), fanOutTimeout)
	defer cancel()

	log := logrus.WithField("event_id", record.ID)

	if s.history != nil {
		if err := s.history.Save(ctx, &record); err != nil {
			log.WithError(err).Warn("failed to save scan history")
		}
	}

	if s.feed != nil {
		if err := s.feed.Publish(ctx, record); err != nil {
			log.WithError(err).Warn("failed to publish scan event")
		}
	}

	if s.notifier != nil && record.ScanType == models.ScanTypeEmergency {
		s.notifier.SendNotification(emergencyMessage(record))
	}
}

func emergencyMessage(record models.ScanRecord) string {
	if record.Status == models.StatusDelivered {
		return fmt.Sprintf("🚨 *Emergency scan delivered*\n📦 Code: `%s`\n🕐 Time: `%s`\n📱 Device: %s",
			inlineCode(record.Code), record.CapturedAt.Format("15:04:05"), record.DeviceInfo)
	}
	return fmt.Sprintf("❌ *Emergency scan failed*\n📦 Code: `%s`\n🕐 Time: `%s`\n⚠️ Reason: %s",
		inlineCode(record.Code), record.CapturedAt.Format("15:04:05"), record.FailureReason)
}

// inlineCode keeps a scanned payload from closing its Markdown code span
func inlineCode(code string) string {
	return strings.ReplaceAll(code, "`", "'")
}
