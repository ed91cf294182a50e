package notification

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dabonzo/sslmonitor-sub001/internal/models"
	"github.com/dabonzo/sslmonitor-sub001/internal/storage"
)

// Dispatcher fans alert notifications out to the channels an alerting rule
// references, falling back to the default channels when the rule names none.
type Dispatcher struct {
	channels storage.ChannelStore
	logger   *zap.Logger
}

// NewDispatcher creates a new notification dispatcher
func NewDispatcher(channels storage.ChannelStore, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{channels: channels, logger: logger}
}

// NotifyAlert sends notifications for a newly raised or re-notified alert.
func (d *Dispatcher) NotifyAlert(ctx context.Context, alert *models.Alert, cfg *models.AlertConfiguration, target *models.MonitoredTarget) error {
	return d.send(ctx, cfg.ChannelIDs, &Message{
		Title:           alert.Title,
		Body:            alert.Message,
		TargetURL:       target.URL,
		AlertType:       alert.AlertType,
		Severity:        alert.Severity,
		Status:          StatusAlert,
		OccurrenceCount: alert.OccurrenceCount,
		Time:            time.Now().Format(time.RFC3339),
	})
}

// NotifyRecovery sends notifications when an alert condition clears.
func (d *Dispatcher) NotifyRecovery(ctx context.Context, alert *models.Alert, cfg *models.AlertConfiguration, target *models.MonitoredTarget) error {
	return d.send(ctx, cfg.ChannelIDs, &Message{
		Title:     fmt.Sprintf("Resolved: %s", alert.Title),
		Body:      fmt.Sprintf("The condition behind this alert is no longer present (seen %d times).", alert.OccurrenceCount),
		TargetURL: target.URL,
		AlertType: alert.AlertType,
		Severity:  alert.Severity,
		Status:    StatusRecovery,
		Time:      time.Now().Format(time.RFC3339),
	})
}

// send delivers the message to every resolvable channel concurrently.
func (d *Dispatcher) send(ctx context.Context, channelIDs []int, msg *Message) error {
	channels, err := d.channels.GetChannels(ctx, channelIDs)
	if err != nil {
		return fmt.Errorf("failed to load notification channels: %w", err)
	}
	if len(channels) == 0 {
		channels, err = d.channels.ListDefaultChannels(ctx)
		if err != nil {
			return fmt.Errorf("failed to load default channels: %w", err)
		}
	}
	if len(channels) == 0 {
		d.logger.Debug("no notification channels configured, skipping send")
		return nil
	}

	errCh := make(chan error, len(channels))
	for _, channel := range channels {
		go func(ch *models.NotificationChannel) {
			if err := d.sendToChannel(ctx, ch, msg); err != nil {
				d.logger.Warn("notification delivery failed",
					zap.String("channel_type", ch.Type),
					zap.String("channel_name", ch.Name),
					zap.Error(err))
				errCh <- err
			} else {
				errCh <- nil
			}
		}(channel)
	}

	failed := 0
	for i := 0; i < len(channels); i++ {
		if err := <-errCh; err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("failed to send %d/%d notifications", failed, len(channels))
	}
	return nil
}

func (d *Dispatcher) sendToChannel(ctx context.Context, channel *models.NotificationChannel, msg *Message) error {
	if !channel.Active {
		return nil
	}
	provider, ok := GetProvider(channel.Type)
	if !ok {
		return fmt.Errorf("unknown notification provider: %s", channel.Type)
	}
	return provider.Send(ctx, channel, msg)
}

// TestChannel sends a test notification through one channel.
func (d *Dispatcher) TestChannel(ctx context.Context, channel *models.NotificationChannel) error {
	return d.sendToChannel(ctx, channel, &Message{
		Title:  "Test Notification",
		Body:   "This is a test notification from the monitoring service.",
		Status: StatusTest,
		Time:   time.Now().Format(time.RFC3339),
	})
}
