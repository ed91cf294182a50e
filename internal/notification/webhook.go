package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dabonzo/sslmonitor-sub001/internal/models"
)

// WebhookProvider sends webhook notifications
type WebhookProvider struct{}

func init() {
	RegisterProvider(&WebhookProvider{})
}

func (w *WebhookProvider) Name() string {
	return "webhook"
}

func (w *WebhookProvider) Send(ctx context.Context, channel *models.NotificationChannel, message *Message) error {
	url, _ := channel.Config["webhook_url"].(string)
	method, _ := channel.Config["method"].(string)
	contentType, _ := channel.Config["content_type"].(string)
	customHeaders, _ := channel.Config["headers"].(map[string]interface{})

	if url == "" {
		return fmt.Errorf("webhook_url is required")
	}
	if method == "" {
		method = "POST"
	}
	if contentType == "" {
		contentType = "application/json"
	}

	payload := map[string]interface{}{
		"title":       message.Title,
		"body":        message.Body,
		"target_url":  message.TargetURL,
		"alert_type":  message.AlertType,
		"severity":    message.Severity,
		"status":      message.Status,
		"occurrences": message.OccurrenceCount,
		"time":        message.Time,
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewBuffer(payloadBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", "SSL-Monitor/1.0")
	for key, value := range customHeaders {
		if strValue, ok := value.(string); ok {
			req.Header.Set(key, strValue)
		}
	}

	client := &http.Client{
		Timeout: 10 * time.Second,
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func (w *WebhookProvider) Validate(config map[string]interface{}) error {
	url, ok := config["webhook_url"].(string)
	if !ok || url == "" {
		return fmt.Errorf("webhook_url is required")
	}
	return nil
}
