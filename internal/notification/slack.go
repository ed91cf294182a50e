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

// SlackProvider sends Slack webhook notifications
type SlackProvider struct{}

func init() {
	RegisterProvider(&SlackProvider{})
}

func (s *SlackProvider) Name() string {
	return "slack"
}

func (s *SlackProvider) Send(ctx context.Context, channel *models.NotificationChannel, message *Message) error {
	webhookURL, _ := channel.Config["webhook_url"].(string)
	slackChannel, _ := channel.Config["channel"].(string)
	username, _ := channel.Config["username"].(string)
	iconEmoji, _ := channel.Config["icon_emoji"].(string)

	if webhookURL == "" {
		return fmt.Errorf("webhook_url is required")
	}
	if username == "" {
		username = "SSL Monitor"
	}
	if iconEmoji == "" {
		switch message.Status {
		case StatusRecovery:
			iconEmoji = ":white_check_mark:"
		case StatusAlert:
			iconEmoji = ":x:"
		default:
			iconEmoji = ":information_source:"
		}
	}

	var color string
	switch {
	case message.Status == StatusRecovery:
		color = "good"
	case message.Severity == models.SeverityCritical:
		color = "danger"
	case message.Severity == models.SeverityWarning:
		color = "warning"
	default:
		color = "#808080"
	}

	attachment := map[string]interface{}{
		"color":  color,
		"title":  message.Title,
		"text":   message.Body,
		"ts":     time.Now().Unix(),
		"footer": "SSL Monitor",
		"fields": []map[string]interface{}{
			{"title": "Target", "value": message.TargetURL, "short": true},
			{"title": "Alert Type", "value": message.AlertType, "short": true},
		},
	}

	payload := map[string]interface{}{
		"username":    username,
		"icon_emoji":  iconEmoji,
		"attachments": []interface{}{attachment},
	}
	if slackChannel != "" {
		payload["channel"] = slackChannel
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewBuffer(payloadBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{
		Timeout: 10 * time.Second,
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send slack notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("slack returned status %d", resp.StatusCode)
	}
	return nil
}

func (s *SlackProvider) Validate(config map[string]interface{}) error {
	url, ok := config["webhook_url"].(string)
	if !ok || url == "" {
		return fmt.Errorf("webhook_url is required")
	}
	return nil
}
