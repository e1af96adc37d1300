package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"scan-relay/internal/delivery"
	"scan-relay/internal/models"
	"scan-relay/internal/repository"
	"scan-relay/internal/scan"
)

// mockDeliverer returns a fixed status, optionally waiting on gate first
type mockDeliverer struct {
	mu     sync.Mutex
	status models.ScanStatus
	err    error
	gate   chan struct{}
	calls  []models.ScanEvent
}

func (m *mockDeliverer) Deliver(ctx context.Context, event models.ScanEvent) delivery.Result {
	m.mu.Lock()
	m.calls = append(m.calls, event)
	gate := m.gate
	m.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return delivery.Result{EventID: event.ID, Status: m.status, Latency: 5 * time.Millisecond, Err: m.err}
}

func (m *mockDeliverer) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

var _ Deliverer = (*mockDeliverer)(nil)

type mockSettings struct {
	scanType models.ScanType
}

func (m mockSettings) GetScanType() models.ScanType { return m.scanType }
func (m mockSettings) GetDeviceInfo() string        { return "Test Device" }

var _ SettingsProvider = mockSettings{}

type mockHistory struct {
	mu      sync.Mutex
	records []models.ScanRecord
}

func (m *mockHistory) Save(ctx context.Context, record *models.ScanRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, *record)
	return nil
}

func (m *mockHistory) List(ctx context.Context, limit int) ([]models.ScanRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ScanRecord(nil), m.records...), nil
}

func (m *mockHistory) saved() []models.ScanRecord {
	records, _ := m.List(context.Background(), 0)
	return records
}

var _ repository.ScanHistoryRepository = (*mockHistory)(nil)

type mockFeed struct {
	mu    sync.Mutex
	count int
}

func (m *mockFeed) Publish(ctx context.Context, record models.ScanRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count++
	return errors.New("broker unavailable")
}

var _ repository.ScanFeedPublisher = (*mockFeed)(nil)

type mockNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (m *mockNotifier) SendNotification(message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, message)
}

func (m *mockNotifier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

var _ BotNotifier = (*mockNotifier)(nil)

// fakeClock is a manually advanced time source
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// waitFor polls cond until it holds or the deadline passes
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type testHarness struct {
	service  *ScanService
	store    *scan.Store
	deliver  *mockDeliverer
	history  *mockHistory
	feed     *mockFeed
	notifier *mockNotifier
	clock    *fakeClock
}

func startService(t *testing.T, deliver *mockDeliverer) *testHarness {
	t.Helper()
	h := &testHarness{
		store:    scan.NewStore(),
		deliver:  deliver,
		history:  &mockHistory{},
		feed:     &mockFeed{},
		notifier: &mockNotifier{},
		clock:    &fakeClock{now: time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)},
	}
	h.service = NewScanService(
		scan.NewDeduplicator(2*time.Second),
		h.store,
		deliver,
		mockSettings{scanType: models.ScanTypeNormal},
		WithHistory(h.history),
		WithFeed(h.feed),
		WithNotifier(h.notifier),
		WithClock(h.clock.Now),
	)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.service.Run(ctx)
	return h
}

func TestSubmitDelivered(t *testing.T) {
	h := startService(t, &mockDeliverer{status: models.StatusDelivered})

	event, err := h.service.Submit(context.Background(), "8801234567890", models.ScanTypeNormal)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if event.Status != models.StatusInFlight {
		t.Errorf("Submit() status = %v, want %v", event.Status, models.StatusInFlight)
	}
	if !event.CapturedAt.Equal(h.clock.Now()) {
		t.Errorf("CapturedAt = %v, want %v", event.CapturedAt, h.clock.Now())
	}

	waitFor(t, "delivered status", func() bool {
		got, _ := h.store.Get(event.ID)
		return got.Status == models.StatusDelivered
	})
	if h.store.Len() != 1 {
		t.Errorf("store Len() = %d, want 1", h.store.Len())
	}
	if h.service.TotalScans() != 1 {
		t.Errorf("TotalScans() = %d, want 1", h.service.TotalScans())
	}
	waitFor(t, "no pending deliveries", func() bool { return h.service.Pending() == 0 })
	waitFor(t, "history record", func() bool { return len(h.history.saved()) == 1 })

	record := h.history.saved()[0]
	if record.Status != models.StatusDelivered || record.FailureReason != "" || record.DeviceInfo != "Test Device" {
		t.Errorf("history record = %+v", record)
	}
	if h.notifier.count() != 0 {
		t.Errorf("normal scan sent %d notifications, want 0", h.notifier.count())
	}
}

func TestSubmitDuplicateWindow(t *testing.T) {
	h := startService(t, &mockDeliverer{status: models.StatusDelivered})
	ctx := context.Background()

	if _, err := h.service.Submit(ctx, "A123", ""); err != nil {
		t.Fatalf("first Submit() error = %v", err)
	}

	h.clock.Advance(1500 * time.Millisecond)
	if _, err := h.service.Submit(ctx, "A123", ""); !errors.Is(err, ErrDuplicate) {
		t.Errorf("Submit() at 1.5s error = %v, want %v", err, ErrDuplicate)
	}
	if h.store.Len() != 1 {
		t.Errorf("store Len() after duplicate = %d, want 1", h.store.Len())
	}

	h.clock.Advance(600 * time.Millisecond)
	if _, err := h.service.Submit(ctx, "A123", ""); err != nil {
		t.Errorf("Submit() at 2.1s error = %v", err)
	}
	if h.store.Len() != 2 {
		t.Errorf("store Len() = %d, want 2", h.store.Len())
	}
	waitFor(t, "two deliveries", func() bool { return h.deliver.callCount() == 2 })
}

func TestSubmitEmptyCode(t *testing.T) {
	h := startService(t, &mockDeliverer{status: models.StatusDelivered})

	for _, code := range []string{"", "   ", "\n"} {
		if _, err := h.service.Submit(context.Background(), code, ""); !errors.Is(err, ErrEmptyCode) {
			t.Errorf("Submit(%q) error = %v, want %v", code, err, ErrEmptyCode)
		}
	}
	if h.store.Len() != 0 {
		t.Errorf("store Len() = %d, want 0", h.store.Len())
	}
}

func TestSubmitDefaultScanType(t *testing.T) {
	h := startService(t, &mockDeliverer{status: models.StatusDelivered})

	event, err := h.service.Submit(context.Background(), "X", models.ScanType("bogus"))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if event.ScanType != models.ScanTypeNormal {
		t.Errorf("ScanType = %v, want %v", event.ScanType, models.ScanTypeNormal)
	}
}

func TestSubmitFailedEmergency(t *testing.T) {
	h := startService(t, &mockDeliverer{
		status: models.StatusFailed,
		err:    &delivery.DeliveryError{Kind: delivery.ErrProtocol, StatusCode: 500},
	})

	event, err := h.service.Submit(context.Background(), "E-1", models.ScanTypeEmergency)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	waitFor(t, "failed status", func() bool {
		got, _ := h.store.Get(event.ID)
		return got.Status == models.StatusFailed
	})
	waitFor(t, "emergency notification", func() bool { return h.notifier.count() == 1 })
	waitFor(t, "history record", func() bool { return len(h.history.saved()) == 1 })

	if reason := h.history.saved()[0].FailureReason; reason != "protocol" {
		t.Errorf("FailureReason = %q, want protocol", reason)
	}
	// Feed errors are logged only
	got, _ := h.store.Get(event.ID)
	if got.Status != models.StatusFailed {
		t.Errorf("status after fan-out = %v, want %v", got.Status, models.StatusFailed)
	}
}

func TestClearResetsDedup(t *testing.T) {
	h := startService(t, &mockDeliverer{status: models.StatusDelivered})
	ctx := context.Background()

	if _, err := h.service.Submit(ctx, "A123", ""); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := h.service.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if h.store.Len() != 0 || h.service.TotalScans() != 0 {
		t.Errorf("after Clear Len() = %d, TotalScans() = %d", h.store.Len(), h.service.TotalScans())
	}

	if _, err := h.service.Submit(ctx, "A123", ""); err != nil {
		t.Errorf("Submit() after Clear error = %v, want accepted", err)
	}
}

func TestLateResultForClearedEvent(t *testing.T) {
	gate := make(chan struct{})
	h := startService(t, &mockDeliverer{status: models.StatusDelivered, gate: gate})
	ctx := context.Background()

	if _, err := h.service.Submit(ctx, "LATE", ""); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	waitFor(t, "delivery started", func() bool { return h.deliver.callCount() == 1 })
	if h.service.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", h.service.Pending())
	}

	if err := h.service.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	close(gate)

	waitFor(t, "result applied", func() bool { return h.service.Pending() == 0 })
	if h.store.Len() != 0 {
		t.Errorf("store Len() = %d, want 0", h.store.Len())
	}
	// Give a stray fan-out a chance to show up before asserting it never ran
	time.Sleep(20 * time.Millisecond)
	if n := len(h.history.saved()); n != 0 {
		t.Errorf("history saved %d records for a cleared event, want 0", n)
	}
}

func TestSubmitAfterStop(t *testing.T) {
	service := NewScanService(
		scan.NewDeduplicator(0),
		scan.NewStore(),
		&mockDeliverer{status: models.StatusDelivered},
		mockSettings{scanType: models.ScanTypeNormal},
	)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		service.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	if _, err := service.Submit(context.Background(), "A", ""); !errors.Is(err, ErrStopped) {
		t.Errorf("Submit() after stop error = %v, want %v", err, ErrStopped)
	}
	if err := service.Clear(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("Clear() after stop error = %v, want %v", err, ErrStopped)
	}
}

func TestEmergencyMessage(t *testing.T) {
	tests := []struct {
		name   string
		code   string
		status models.ScanStatus
		want   string
	}{
		{"Failed", "E-1", models.StatusFailed, "❌ *Emergency scan failed*\n📦 Code: `E-1`\n🕐 Time: `08:30:15`\n⚠️ Reason: transport"},
		{"Delivered", "E-1", models.StatusDelivered, "🚨 *Emergency scan delivered*\n📦 Code: `E-1`\n🕐 Time: `08:30:15`\n📱 Device: "},
		{"Backtick in code", "A`B``C", models.StatusFailed, "❌ *Emergency scan failed*\n📦 Code: `A'B''C`\n🕐 Time: `08:30:15`\n⚠️ Reason: transport"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := models.ScanRecord{
				ScanEvent: models.ScanEvent{
					Code:       tt.code,
					CapturedAt: time.Date(2026, 2, 1, 8, 30, 15, 0, time.UTC),
					Status:     tt.status,
				},
				FailureReason: "transport",
			}
			if got := emergencyMessage(record); got != tt.want {
				t.Errorf("emergencyMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

// endpointConfig serves both the dispatcher and the service
type endpointConfig struct {
	url string
}

func (c endpointConfig) GetEndpointURL() string       { return c.url }
func (c endpointConfig) GetDeviceInfo() string        { return "Test Device" }
func (c endpointConfig) GetScanType() models.ScanType { return models.ScanTypeNormal }

var (
	_ delivery.ConfigProvider = endpointConfig{}
	_ SettingsProvider        = endpointConfig{}
)

func startWithDispatcher(t *testing.T, cfg endpointConfig) (*ScanService, *scan.Store) {
	t.Helper()
	store := scan.NewStore()
	service := NewScanService(
		scan.NewDeduplicator(2*time.Second),
		store,
		delivery.NewDispatcher(cfg, delivery.WithTimeout(2*time.Second)),
		cfg,
	)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go service.Run(ctx)
	return service, store
}

func TestSubmitDeliveredToEndpoint(t *testing.T) {
	var hits atomic.Int32
	var mu sync.Mutex
	var got models.DeliveryPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		mu.Lock()
		json.NewDecoder(r.Body).Decode(&got)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	service, store := startWithDispatcher(t, endpointConfig{url: server.URL})

	event, err := service.Submit(context.Background(), "8801234567890", models.ScanTypeNormal)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	waitFor(t, "delivered status", func() bool {
		e, _ := store.Get(event.ID)
		return e.Status == models.StatusDelivered
	})
	if store.Len() != 1 {
		t.Errorf("store Len() = %d, want 1", store.Len())
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("endpoint hits = %d, want 1", n)
	}
	mu.Lock()
	defer mu.Unlock()
	if got.Code != "8801234567890" || got.DeviceInfo != "Test Device" {
		t.Errorf("payload = %+v", got)
	}
	waitFor(t, "pending drained", func() bool { return service.Pending() == 0 })
}

func TestSubmitWithoutEndpointFails(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	service, store := startWithDispatcher(t, endpointConfig{url: ""})

	event, err := service.Submit(context.Background(), "8801234567890", models.ScanTypeNormal)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	waitFor(t, "failed status", func() bool {
		e, _ := store.Get(event.ID)
		return e.Status == models.StatusFailed
	})
	waitFor(t, "pending drained", func() bool { return service.Pending() == 0 })
	if n := hits.Load(); n != 0 {
		t.Errorf("endpoint hits = %d, want 0", n)
	}
}
