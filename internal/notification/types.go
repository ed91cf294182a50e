package notification

import (
	"context"
	"fmt"
	"sync"

	"github.com/dabonzo/sslmonitor-sub001/internal/models"
)

// Provider defines the interface for all notification providers
type Provider interface {
	// Name returns the unique identifier for this provider
	Name() string

	// Send delivers a message through the given channel
	Send(ctx context.Context, channel *models.NotificationChannel, message *Message) error

	// Validate validates the provider configuration
	Validate(config map[string]interface{}) error
}

// Message statuses
const (
	StatusAlert    = "alert"
	StatusRecovery = "recovery"
	StatusTest     = "test"
)

// Message represents a notification message to be sent
type Message struct {
	Title           string
	Body            string
	TargetURL       string
	AlertType       string
	Severity        string
	Status          string // "alert", "recovery", "test"
	OccurrenceCount int
	Time            string
}

// Registry holds all registered notification providers
var (
	providers = make(map[string]Provider)
	mu        sync.RWMutex
)

// RegisterProvider registers a new notification provider
func RegisterProvider(provider Provider) {
	mu.Lock()
	defer mu.Unlock()
	providers[provider.Name()] = provider
}

// GetProvider returns a provider by name
func GetProvider(name string) (Provider, bool) {
	mu.RLock()
	defer mu.RUnlock()
	provider, ok := providers[name]
	return provider, ok
}

// GetAllProviders returns all registered providers
func GetAllProviders() map[string]Provider {
	mu.RLock()
	defer mu.RUnlock()
	result := make(map[string]Provider)
	for k, v := range providers {
		result[k] = v
	}
	return result
}

// FormatMessage formats a notification message with common details
func FormatMessage(msg *Message) string {
	var statusEmoji string
	switch msg.Status {
	case StatusRecovery:
		statusEmoji = "✅"
	case StatusAlert:
		if msg.Severity == models.SeverityCritical {
			statusEmoji = "❌"
		} else {
			statusEmoji = "⚠️"
		}
	default:
		statusEmoji = "ℹ️"
	}

	body := fmt.Sprintf("%s %s\n\n", statusEmoji, msg.Title)
	body += msg.Body + "\n\n"

	if msg.TargetURL != "" {
		body += fmt.Sprintf("URL: %s\n", msg.TargetURL)
	}
	if msg.AlertType != "" {
		body += fmt.Sprintf("Alert: %s (%s)\n", msg.AlertType, msg.Severity)
	}
	if msg.OccurrenceCount > 1 {
		body += fmt.Sprintf("Occurrences: %d\n", msg.OccurrenceCount)
	}
	body += fmt.Sprintf("Time: %s\n", msg.Time)

	return body
}
