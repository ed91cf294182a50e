package alerting

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dabonzo/sslmonitor-sub001/internal/models"
	"github.com/dabonzo/sslmonitor-sub001/internal/storage"
)

// DefaultCooldown is the minimum gap between notifications for one rule.
const DefaultCooldown = 24 * time.Hour

// Notifier delivers alert notifications to the channels a rule references.
// The alerting engine treats delivery as best-effort.
type Notifier interface {
	NotifyAlert(ctx context.Context, alert *models.Alert, cfg *models.AlertConfiguration, target *models.MonitoredTarget) error
	NotifyRecovery(ctx context.Context, alert *models.Alert, cfg *models.AlertConfiguration, target *models.MonitoredTarget) error
}

// Broadcaster pushes alert lifecycle events to connected clients.
type Broadcaster interface {
	Broadcast(event string, payload interface{})
}

// Engine turns check results into alert state transitions. For each
// (target, alert type) pair it maintains at most one unresolved Alert row:
// repeat detections bump the occurrence count, recovery resolves the row,
// and the per-rule cooldown gates both new-alert creation and notification
// dispatch. Occurrence bookkeeping on an existing alert is never gated.
type Engine struct {
	alerts   storage.AlertStore
	configs  storage.AlertConfigStore
	notifier Notifier
	hub      Broadcaster
	logger   *zap.Logger
	cooldown time.Duration

	now func() time.Time
}

// NewEngine creates an alert engine. notifier and hub may be nil.
func NewEngine(alerts storage.AlertStore, configs storage.AlertConfigStore, notifier Notifier, hub Broadcaster, logger *zap.Logger, cooldown time.Duration) *Engine {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Engine{
		alerts:   alerts,
		configs:  configs,
		notifier: notifier,
		hub:      hub,
		logger:   logger,
		cooldown: cooldown,
		now:      time.Now,
	}
}

// Process evaluates every enabled rule covering the target against one check
// result. Rule evaluation is independent: a failure on one rule is logged
// and does not stop the others.
func (e *Engine) Process(ctx context.Context, result *models.CheckResult, target *models.MonitoredTarget) error {
	cfgs, err := e.configs.ListEnabledConfigsForWebsite(ctx, target.WebsiteID)
	if err != nil {
		return fmt.Errorf("loading alert configurations: %w", err)
	}
	for _, cfg := range cfgs {
		if err := e.processRule(ctx, cfg, result, target); err != nil {
			e.logger.Error("alert rule processing failed",
				zap.Int("config_id", cfg.ID),
				zap.String("alert_type", cfg.AlertType),
				zap.Int("target_id", target.ID),
				zap.Error(err))
		}
	}
	return nil
}

func (e *Engine) processRule(ctx context.Context, cfg *models.AlertConfiguration, result *models.CheckResult, target *models.MonitoredTarget) error {
	fired, applicable, tv := evaluateTrigger(cfg, result)
	if !applicable {
		return nil
	}

	existing, err := e.alerts.FindUnresolvedAlert(ctx, target.ID, cfg.AlertType)
	if err != nil {
		return fmt.Errorf("looking up open alert: %w", err)
	}

	if !fired {
		if existing != nil {
			notify := !certEscalated(cfg.AlertType, result)
			return e.resolve(ctx, existing, cfg, target, notify)
		}
		return nil
	}

	now := e.now()
	if existing != nil {
		// Deduplicate: the open alert absorbs the repeat detection. The
		// cooldown only decides whether anyone gets told again.
		if err := e.alerts.RecordOccurrence(ctx, existing.ID, now, tv); err != nil {
			return fmt.Errorf("recording occurrence: %w", err)
		}
		existing.OccurrenceCount++
		existing.LastOccurredAt = now
		existing.TriggerValue = tv
		if e.cooldownElapsed(cfg, now) && !e.suppressed(existing, now) {
			e.dispatch(ctx, existing, cfg, target, now)
		}
		return nil
	}

	if !e.cooldownElapsed(cfg, now) {
		e.logger.Debug("alert creation held by cooldown",
			zap.Int("config_id", cfg.ID),
			zap.Int("target_id", target.ID),
			zap.String("alert_type", cfg.AlertType))
		return nil
	}

	severity := cfg.Severity
	if severity == "" {
		severity = defaultSeverity(cfg.AlertType)
	}
	alert := &models.Alert{
		TargetID:        target.ID,
		WebsiteID:       target.WebsiteID,
		AlertType:       cfg.AlertType,
		Severity:        severity,
		Title:           alertTitle(cfg.AlertType, target, tv),
		Message:         alertMessage(cfg.AlertType, target, tv, cfg),
		FirstDetectedAt: now,
		LastOccurredAt:  now,
		OccurrenceCount: 1,
		TriggerValue:    tv,
		Threshold:       thresholdSnapshot(cfg),
	}
	if err := e.alerts.CreateAlert(ctx, alert); err != nil {
		return fmt.Errorf("creating alert: %w", err)
	}
	e.logger.Info("alert raised",
		zap.Int("alert_id", alert.ID),
		zap.Int("target_id", target.ID),
		zap.String("alert_type", alert.AlertType),
		zap.String("severity", alert.Severity))
	e.broadcast("alert_raised", alert)
	e.dispatch(ctx, alert, cfg, target, now)
	return nil
}

// dispatch sends notifications for an alert and records the attempt on the
// alert row and the rule's last-triggered timestamp.
func (e *Engine) dispatch(ctx context.Context, alert *models.Alert, cfg *models.AlertConfiguration, target *models.MonitoredTarget, now time.Time) {
	if err := e.configs.MarkTriggered(ctx, cfg.ID, now); err != nil {
		e.logger.Warn("marking rule triggered failed", zap.Int("config_id", cfg.ID), zap.Error(err))
	}
	cfg.LastTriggeredAt = &now

	if e.notifier == nil {
		return
	}
	if err := e.notifier.NotifyAlert(ctx, alert, cfg, target); err != nil {
		alert.LastNotificationError = err.Error()
		e.logger.Warn("alert notification failed",
			zap.Int("alert_id", alert.ID),
			zap.Error(err))
	} else {
		alert.NotificationsSent++
		alert.LastNotifiedAt = &now
		alert.LastNotificationError = ""
	}
	if err := e.alerts.UpdateAlert(ctx, alert); err != nil {
		e.logger.Warn("persisting notification bookkeeping failed",
			zap.Int("alert_id", alert.ID),
			zap.Error(err))
	}
}

func (e *Engine) resolve(ctx context.Context, alert *models.Alert, cfg *models.AlertConfiguration, target *models.MonitoredTarget, notify bool) error {
	now := e.now()
	alert.ResolvedAt = &now
	if err := e.alerts.UpdateAlert(ctx, alert); err != nil {
		return fmt.Errorf("resolving alert: %w", err)
	}
	e.logger.Info("alert resolved",
		zap.Int("alert_id", alert.ID),
		zap.Int("target_id", target.ID),
		zap.String("alert_type", alert.AlertType))
	e.broadcast("alert_resolved", alert)
	if notify && e.notifier != nil && !e.suppressed(alert, now) {
		if err := e.notifier.NotifyRecovery(ctx, alert, cfg, target); err != nil {
			e.logger.Warn("recovery notification failed",
				zap.Int("alert_id", alert.ID),
				zap.Error(err))
		}
	}
	return nil
}

// Acknowledge marks an open alert as seen by a user. Acknowledged alerts
// stay open; only recovery or an explicit Resolve closes them.
func (e *Engine) Acknowledge(ctx context.Context, alertID, userID int, note string) (*models.Alert, error) {
	alert, err := e.alerts.GetAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}
	now := e.now()
	alert.AcknowledgedAt = &now
	alert.AcknowledgedBy = &userID
	alert.AcknowledgeNote = note
	if err := e.alerts.UpdateAlert(ctx, alert); err != nil {
		return nil, err
	}
	e.broadcast("alert_acknowledged", alert)
	return alert, nil
}

// Resolve closes an alert manually. The next firing detection opens a fresh
// alert with its own occurrence count.
func (e *Engine) Resolve(ctx context.Context, alertID int) (*models.Alert, error) {
	alert, err := e.alerts.GetAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if alert.Resolved() {
		return alert, nil
	}
	now := e.now()
	alert.ResolvedAt = &now
	if err := e.alerts.UpdateAlert(ctx, alert); err != nil {
		return nil, err
	}
	e.broadcast("alert_resolved", alert)
	return alert, nil
}

// Suppress mutes notifications for an open alert until the given time. The
// alert itself stays open and keeps counting occurrences.
func (e *Engine) Suppress(ctx context.Context, alertID int, until time.Time) (*models.Alert, error) {
	alert, err := e.alerts.GetAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}
	alert.Suppressed = true
	alert.SuppressUntil = &until
	if err := e.alerts.UpdateAlert(ctx, alert); err != nil {
		return nil, err
	}
	return alert, nil
}

func (e *Engine) cooldownElapsed(cfg *models.AlertConfiguration, now time.Time) bool {
	if cfg.LastTriggeredAt == nil {
		return true
	}
	return now.Sub(*cfg.LastTriggeredAt) >= e.cooldown
}

func (e *Engine) suppressed(alert *models.Alert, now time.Time) bool {
	if !alert.Suppressed {
		return false
	}
	return alert.SuppressUntil == nil || now.Before(*alert.SuppressUntil)
}

func (e *Engine) broadcast(event string, alert *models.Alert) {
	if e.hub != nil {
		e.hub.Broadcast(event, alert)
	}
}

func alertMessage(alertType string, target *models.MonitoredTarget, tv *models.TriggerValue, cfg *models.AlertConfiguration) string {
	switch alertType {
	case models.AlertTypeSSLExpiry:
		if tv != nil && tv.DaysUntilExpiration != nil {
			return fmt.Sprintf("The certificate for %s expires in %d days (threshold %d days).",
				target.URL, *tv.DaysUntilExpiration, cfg.ThresholdDays)
		}
	case models.AlertTypeLetsEncryptRenewal:
		if tv != nil && tv.DaysUntilExpiration != nil {
			return fmt.Sprintf("The certificate for %s is %d days from expiry but has not been renewed; automated renewal normally replaces it earlier.",
				target.URL, *tv.DaysUntilExpiration)
		}
	case models.AlertTypeSSLInvalid:
		if tv != nil && tv.SSLStatus != nil {
			return fmt.Sprintf("The certificate for %s failed validation (status %q).", target.URL, *tv.SSLStatus)
		}
	case models.AlertTypeUptimeDown:
		return fmt.Sprintf("%s failed its uptime check (%d consecutive failures).", target.URL, target.ConsecutiveFailures)
	case models.AlertTypeResponseTime:
		if tv != nil && tv.ResponseTimeMs != nil {
			return fmt.Sprintf("%s responded in %dms, above the %dms threshold.",
				target.URL, *tv.ResponseTimeMs, cfg.ThresholdResponseTimeMs)
		}
	}
	return alertTitle(alertType, target, tv)
}
