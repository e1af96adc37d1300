// Package bot provides the Telegram operator bot for the scan relay
package bot

import "scan-relay/internal/services"

// Notifier wraps the package-level bot functions to implement services.BotNotifier interface
type Notifier struct{}

// NewNotifier creates a new bot notifier
func NewNotifier() *Notifier {
	return &Notifier{}
}

// SendNotification sends a notification to the admin chat
func (n *Notifier) SendNotification(message string) {
	SendNotification(message)
}

var _ services.BotNotifier = (*Notifier)(nil)
