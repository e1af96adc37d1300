package delivery

import (
	"errors"
	"fmt"
)

// Failure classes. A DeliveryError matches its class with errors.Is.
var (
	ErrNotConfigured = errors.New("scan endpoint not configured")
	ErrTransport     = errors.New("transport failure")
	ErrProtocol      = errors.New("unexpected response status")
	ErrSerialization = errors.New("payload serialization failed")
)

// DeliveryError describes why a single delivery attempt failed
type DeliveryError struct {
	Kind       error
	EventID    string
	StatusCode int
	Err        error
}

func (e *DeliveryError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("deliver %s: %v: HTTP %d", e.EventID, e.Kind, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("deliver %s: %v: %v", e.EventID, e.Kind, e.Err)
	default:
		return fmt.Sprintf("deliver %s: %v", e.EventID, e.Kind)
	}
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

func (e *DeliveryError) Is(target error) bool {
	return target == e.Kind
}

// Reason returns a short failure class label for logs and metrics
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotConfigured):
		return "not_configured"
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, ErrProtocol):
		return "protocol"
	case errors.Is(err, ErrSerialization):
		return "serialization"
	default:
		return "unknown"
	}
}
