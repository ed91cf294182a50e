package storage

import (
	"context"
	"errors"
	"time"

	"github.com/dabonzo/sslmonitor-sub001/internal/models"
)

// ErrNotFound is returned by single-record lookups when no row matches.
var ErrNotFound = errors.New("record not found")

// TargetStore persists monitored targets and their cached status fields.
type TargetStore interface {
	CreateTarget(ctx context.Context, t *models.MonitoredTarget) error
	GetTarget(ctx context.Context, id int) (*models.MonitoredTarget, error)
	GetTargetByURL(ctx context.Context, url string) (*models.MonitoredTarget, error)
	UpdateTarget(ctx context.Context, t *models.MonitoredTarget) error
	// DeactivateTarget soft-removes a target from monitoring.
	DeactivateTarget(ctx context.Context, id int) error
	ListActiveTargets(ctx context.Context) ([]*models.MonitoredTarget, error)
	// ListActiveTargetsPage returns one batch of active targets ordered by ID.
	ListActiveTargetsPage(ctx context.Context, offset, limit int) ([]*models.MonitoredTarget, error)
	// ListDueTargets returns active targets whose baseline check interval has
	// elapsed since their last uptime or certificate check.
	ListDueTargets(ctx context.Context, now time.Time) ([]*models.MonitoredTarget, error)
}

// ResultFilter narrows batch check-result queries.
type ResultFilter struct {
	TargetID  int
	CheckType string
	Since     *time.Time
	Until     *time.Time
	Limit     int
}

// ResultStore persists immutable check results.
type ResultStore interface {
	CreateResult(ctx context.Context, r *models.CheckResult) error
	// ListResultsInWindow returns all results for one target with
	// completed_at in [from, to).
	ListResultsInWindow(ctx context.Context, targetID int, from, to time.Time) ([]*models.CheckResult, error)
	ListResults(ctx context.Context, f ResultFilter) ([]*models.CheckResult, error)
	DeleteResultsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// AlertFilter narrows alert queries.
type AlertFilter struct {
	TargetID  int
	WebsiteID int
	AlertType string
	Severity  string
}

// AlertStore persists raised alerts. The occurrence-count read-modify-write
// must be atomic; the GORM implementation wraps it in a transaction.
type AlertStore interface {
	CreateAlert(ctx context.Context, a *models.Alert) error
	GetAlert(ctx context.Context, id int) (*models.Alert, error)
	UpdateAlert(ctx context.Context, a *models.Alert) error
	// FindUnresolvedAlert returns the open alert for (target, type), or nil.
	FindUnresolvedAlert(ctx context.Context, targetID int, alertType string) (*models.Alert, error)
	ListUnresolvedAlerts(ctx context.Context, f AlertFilter) ([]*models.Alert, error)
	// RecordOccurrence atomically bumps occurrence_count and refreshes the
	// last-occurred timestamp and trigger snapshot of an open alert.
	RecordOccurrence(ctx context.Context, alertID int, occurredAt time.Time, tv *models.TriggerValue) error
}

// AlertConfigStore persists user alerting rules.
type AlertConfigStore interface {
	CreateAlertConfig(ctx context.Context, c *models.AlertConfiguration) error
	GetAlertConfig(ctx context.Context, id int) (*models.AlertConfiguration, error)
	UpdateAlertConfig(ctx context.Context, c *models.AlertConfiguration) error
	DeleteAlertConfig(ctx context.Context, id int) error
	ListAlertConfigs(ctx context.Context, userID int) ([]*models.AlertConfiguration, error)
	// ListEnabledConfigsForWebsite returns enabled rules scoped to the website
	// plus enabled global rules.
	ListEnabledConfigsForWebsite(ctx context.Context, websiteID int) ([]*models.AlertConfiguration, error)
	// MarkTriggered sets last_triggered_at; the only alert-engine-side
	// mutation of a configuration.
	MarkTriggered(ctx context.Context, configID int, at time.Time) error
}

// SummaryStore persists aggregated statistics.
type SummaryStore interface {
	// UpsertSummary overwrites any existing row with the same
	// (target, website, period type, period start) key.
	UpsertSummary(ctx context.Context, s *models.CheckSummary) error
	ListSummaries(ctx context.Context, targetID int, periodType string, since time.Time) ([]*models.CheckSummary, error)
	DeleteSummariesBefore(ctx context.Context, periodType string, cutoff time.Time) (int64, error)
}

// ChannelStore persists notification channels.
type ChannelStore interface {
	GetChannels(ctx context.Context, ids []int) ([]*models.NotificationChannel, error)
	ListDefaultChannels(ctx context.Context) ([]*models.NotificationChannel, error)
}

// Store is the full persistence surface backed by one database.
type Store interface {
	TargetStore
	ResultStore
	AlertStore
	AlertConfigStore
	SummaryStore
	ChannelStore
}
