// Package delivery sends accepted scan events to the configured endpoint
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"scan-relay/internal/metrics"
	"scan-relay/internal/models"
)

// DefaultTimeout bounds a single delivery request
const DefaultTimeout = 30 * time.Second

// ConfigProvider supplies the destination and device metadata for deliveries
type ConfigProvider interface {
	GetEndpointURL() string
	GetDeviceInfo() string
}

// Doer sends HTTP requests; *http.Client satisfies it
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Result is the outcome of one delivery attempt
type Result struct {
	EventID    string
	Status     models.ScanStatus
	StatusCode int
	Latency    time.Duration
	Err        error
}

// Dispatcher performs exactly one POST per event and never retries
type Dispatcher struct {
	config  ConfigProvider
	client  Doer
	timeout time.Duration
	marshal func(v any) ([]byte, error)
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithClient overrides the HTTP client
func WithClient(client Doer) Option {
	return func(d *Dispatcher) { d.client = client }
}

// WithTimeout overrides the per-request timeout
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// NewDispatcher creates a dispatcher reading endpoint settings from config
func NewDispatcher(config ConfigProvider, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		config:  config,
		timeout: DefaultTimeout,
		marshal: json.Marshal,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.client == nil {
		d.client = &http.Client{Timeout: d.timeout}
	}
	return d
}

// Deliver sends event to the configured endpoint and reports the terminal status.
// It never returns a non-terminal status: every failure class maps to Failed.
func (d *Dispatcher) Deliver(ctx context.Context, event models.ScanEvent) Result {
	start := time.Now()
	metrics.DeliveriesInFlight.Inc()
	defer metrics.DeliveriesInFlight.Dec()

	statusCode, err := d.send(ctx, event)

	result := Result{
		EventID:    event.ID,
		Status:     models.StatusDelivered,
		StatusCode: statusCode,
		Latency:    time.Since(start),
		Err:        err,
	}
	if err != nil {
		result.Status = models.StatusFailed
		logrus.WithFields(logrus.Fields{
			"event_id": event.ID,
			"code":     event.Code,
			"reason":   Reason(err),
		}).WithError(err).Warn("scan delivery failed")
	} else {
		logrus.WithFields(logrus.Fields{
			"event_id":   event.ID,
			"code":       event.Code,
			"latency_ms": result.Latency.Milliseconds(),
		}).Info("scan delivered")
	}

	metrics.DeliveryDuration.Observe(result.Latency.Seconds())
	metrics.DeliveriesTotal.WithLabelValues(string(result.Status)).Inc()
	return result
}

func (d *Dispatcher) send(ctx context.Context, event models.ScanEvent) (int, error) {
	endpoint, err := validateEndpoint(d.config.GetEndpointURL())
	if err == ErrNotConfigured {
		return 0, &DeliveryError{Kind: ErrNotConfigured, EventID: event.ID}
	}
	if err != nil {
		return 0, &DeliveryError{Kind: ErrNotConfigured, EventID: event.ID, Err: err}
	}

	payload := models.NewDeliveryPayload(event, d.config.GetDeviceInfo())
	body, err := d.marshal(payload)
	if err != nil {
		return 0, &DeliveryError{Kind: ErrSerialization, EventID: event.ID, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, &DeliveryError{Kind: ErrNotConfigured, EventID: event.ID, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, &DeliveryError{Kind: ErrTransport, EventID: event.ID, Err: err}
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, &DeliveryError{Kind: ErrProtocol, EventID: event.ID, StatusCode: resp.StatusCode}
	}
	return resp.StatusCode, nil
}

// ValidateEndpoint reports whether raw is usable as a scan endpoint
func ValidateEndpoint(raw string) error {
	_, err := validateEndpoint(raw)
	return err
}

func validateEndpoint(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrNotConfigured
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%q is not an absolute http or https URL", raw)
	}
	return u.String(), nil
}
