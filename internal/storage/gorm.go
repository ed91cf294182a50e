package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dabonzo/sslmonitor-sub001/internal/models"
	"github.com/dabonzo/sslmonitor-sub001/internal/sslcert"
)

func mapErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// GormStore implements Store on a GORM-managed database.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a store backed by the given database handle.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// --- targets ---

func (s *GormStore) CreateTarget(ctx context.Context, t *models.MonitoredTarget) error {
	return s.db.WithContext(ctx).Create(t).Error
}

func (s *GormStore) GetTarget(ctx context.Context, id int) (*models.MonitoredTarget, error) {
	var t models.MonitoredTarget
	if err := s.db.WithContext(ctx).First(&t, id).Error; err != nil {
		return nil, mapErr(err)
	}
	return &t, nil
}

func (s *GormStore) GetTargetByURL(ctx context.Context, url string) (*models.MonitoredTarget, error) {
	var t models.MonitoredTarget
	err := s.db.WithContext(ctx).Where("url = ?", url).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *GormStore) UpdateTarget(ctx context.Context, t *models.MonitoredTarget) error {
	return s.db.WithContext(ctx).Save(t).Error
}

func (s *GormStore) DeactivateTarget(ctx context.Context, id int) error {
	return s.db.WithContext(ctx).
		Model(&models.MonitoredTarget{}).
		Where("id = ?", id).
		Update("active", false).Error
}

func (s *GormStore) ListActiveTargets(ctx context.Context) ([]*models.MonitoredTarget, error) {
	var targets []*models.MonitoredTarget
	err := s.db.WithContext(ctx).Where("active = ?", true).Find(&targets).Error
	return targets, err
}

func (s *GormStore) ListActiveTargetsPage(ctx context.Context, offset, limit int) ([]*models.MonitoredTarget, error) {
	var targets []*models.MonitoredTarget
	err := s.db.WithContext(ctx).
		Where("active = ?", true).
		Order("id").
		Offset(offset).
		Limit(limit).
		Find(&targets).Error
	return targets, err
}

// dueTargetsQuery selects active targets whose uptime or certificate check
// is due. A check is due once the configured interval has elapsed, or — for
// certificates approaching expiry — once the tighter adaptive recheck
// interval has elapsed, so near-expiry targets come due ahead of their base
// cadence.
func dueTargetsQuery(db *gorm.DB, now time.Time) *gorm.DB {
	soonExpiry := now.AddDate(0, 0, sslcert.RecheckSoonWindowDays)
	nearExpiry := now.AddDate(0, 0, sslcert.RecheckNearWindowDays)

	return db.
		Where("active = ?", true).
		Where(
			db.Where("last_uptime_check_at IS NULL").
				Or("last_uptime_check_at <= (? - make_interval(mins => check_interval_minutes))", now).
				Or("last_cert_check_at IS NULL").
				Or("last_cert_check_at <= (? - make_interval(mins => check_interval_minutes))", now).
				Or("(certificate_expires_at <= ? AND last_cert_check_at <= ?)",
					soonExpiry, now.Add(-sslcert.RecheckSoonInterval)).
				Or("(certificate_expires_at <= ? AND last_cert_check_at <= ?)",
					nearExpiry, now.Add(-sslcert.RecheckNearInterval)),
		)
}

func (s *GormStore) ListDueTargets(ctx context.Context, now time.Time) ([]*models.MonitoredTarget, error) {
	var targets []*models.MonitoredTarget
	err := dueTargetsQuery(s.db.WithContext(ctx), now).Find(&targets).Error
	return targets, err
}

// --- check results ---

func (s *GormStore) CreateResult(ctx context.Context, r *models.CheckResult) error {
	return s.db.WithContext(ctx).Create(r).Error
}

func (s *GormStore) ListResultsInWindow(ctx context.Context, targetID int, from, to time.Time) ([]*models.CheckResult, error) {
	var results []*models.CheckResult
	err := s.db.WithContext(ctx).
		Where("target_id = ? AND completed_at >= ? AND completed_at < ?", targetID, from, to).
		Order("completed_at").
		Find(&results).Error
	return results, err
}

func (s *GormStore) ListResults(ctx context.Context, f ResultFilter) ([]*models.CheckResult, error) {
	q := s.db.WithContext(ctx).Model(&models.CheckResult{})
	if f.TargetID != 0 {
		q = q.Where("target_id = ?", f.TargetID)
	}
	if f.CheckType != "" {
		q = q.Where("check_type = ?", f.CheckType)
	}
	if f.Since != nil {
		q = q.Where("completed_at >= ?", *f.Since)
	}
	if f.Until != nil {
		q = q.Where("completed_at < ?", *f.Until)
	}
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	var results []*models.CheckResult
	err := q.Order("completed_at DESC").Limit(limit).Find(&results).Error
	return results, err
}

func (s *GormStore) DeleteResultsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("completed_at < ?", cutoff).
		Delete(&models.CheckResult{})
	return res.RowsAffected, res.Error
}

// --- alerts ---

func (s *GormStore) CreateAlert(ctx context.Context, a *models.Alert) error {
	return s.db.WithContext(ctx).Create(a).Error
}

func (s *GormStore) GetAlert(ctx context.Context, id int) (*models.Alert, error) {
	var a models.Alert
	if err := s.db.WithContext(ctx).First(&a, id).Error; err != nil {
		return nil, mapErr(err)
	}
	return &a, nil
}

func (s *GormStore) UpdateAlert(ctx context.Context, a *models.Alert) error {
	return s.db.WithContext(ctx).Save(a).Error
}

func (s *GormStore) FindUnresolvedAlert(ctx context.Context, targetID int, alertType string) (*models.Alert, error) {
	var a models.Alert
	err := s.db.WithContext(ctx).
		Where("target_id = ? AND alert_type = ? AND resolved_at IS NULL", targetID, alertType).
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *GormStore) ListUnresolvedAlerts(ctx context.Context, f AlertFilter) ([]*models.Alert, error) {
	q := s.db.WithContext(ctx).Where("resolved_at IS NULL")
	if f.TargetID != 0 {
		q = q.Where("target_id = ?", f.TargetID)
	}
	if f.WebsiteID != 0 {
		q = q.Where("website_id = ?", f.WebsiteID)
	}
	if f.AlertType != "" {
		q = q.Where("alert_type = ?", f.AlertType)
	}
	if f.Severity != "" {
		q = q.Where("severity = ?", f.Severity)
	}
	var alerts []*models.Alert
	err := q.Order("last_occurred_at DESC").Find(&alerts).Error
	return alerts, err
}

func (s *GormStore) RecordOccurrence(ctx context.Context, alertID int, occurredAt time.Time, tv *models.TriggerValue) error {
	raw, err := json.Marshal(tv)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger value: %w", err)
	}
	// Row lock keeps concurrent detections from losing updates.
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var a models.Alert
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&a, alertID).Error; err != nil {
			return err
		}
		return tx.Model(&a).Updates(map[string]interface{}{
			"occurrence_count": gorm.Expr("occurrence_count + 1"),
			"last_occurred_at": occurredAt,
			"trigger_value":    string(raw),
		}).Error
	})
}

// --- alert configurations ---

func (s *GormStore) CreateAlertConfig(ctx context.Context, c *models.AlertConfiguration) error {
	return s.db.WithContext(ctx).Create(c).Error
}

func (s *GormStore) GetAlertConfig(ctx context.Context, id int) (*models.AlertConfiguration, error) {
	var c models.AlertConfiguration
	if err := s.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

func (s *GormStore) UpdateAlertConfig(ctx context.Context, c *models.AlertConfiguration) error {
	return s.db.WithContext(ctx).Save(c).Error
}

func (s *GormStore) DeleteAlertConfig(ctx context.Context, id int) error {
	return s.db.WithContext(ctx).Delete(&models.AlertConfiguration{}, id).Error
}

func (s *GormStore) ListAlertConfigs(ctx context.Context, userID int) ([]*models.AlertConfiguration, error) {
	var configs []*models.AlertConfiguration
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&configs).Error
	return configs, err
}

func (s *GormStore) ListEnabledConfigsForWebsite(ctx context.Context, websiteID int) ([]*models.AlertConfiguration, error) {
	var configs []*models.AlertConfiguration
	err := s.db.WithContext(ctx).
		Where("enabled = ?", true).
		Where("website_id IS NULL OR website_id = ?", websiteID).
		Find(&configs).Error
	return configs, err
}

func (s *GormStore) MarkTriggered(ctx context.Context, configID int, at time.Time) error {
	return s.db.WithContext(ctx).
		Model(&models.AlertConfiguration{}).
		Where("id = ?", configID).
		Update("last_triggered_at", at).Error
}

// --- summaries ---

func (s *GormStore) UpsertSummary(ctx context.Context, sum *models.CheckSummary) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "target_id"}, {Name: "website_id"},
			{Name: "period_type"}, {Name: "period_start"},
		},
		UpdateAll: true,
	}).Create(sum).Error
}

func (s *GormStore) ListSummaries(ctx context.Context, targetID int, periodType string, since time.Time) ([]*models.CheckSummary, error) {
	var summaries []*models.CheckSummary
	err := s.db.WithContext(ctx).
		Where("target_id = ? AND period_type = ? AND period_start >= ?", targetID, periodType, since).
		Order("period_start").
		Find(&summaries).Error
	return summaries, err
}

func (s *GormStore) DeleteSummariesBefore(ctx context.Context, periodType string, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("period_type = ? AND period_start < ?", periodType, cutoff).
		Delete(&models.CheckSummary{})
	return res.RowsAffected, res.Error
}

// --- notification channels ---

func (s *GormStore) GetChannels(ctx context.Context, ids []int) ([]*models.NotificationChannel, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var channels []*models.NotificationChannel
	err := s.db.WithContext(ctx).
		Where("id IN ? AND active = ?", ids, true).
		Find(&channels).Error
	return channels, err
}

func (s *GormStore) ListDefaultChannels(ctx context.Context) ([]*models.NotificationChannel, error) {
	var channels []*models.NotificationChannel
	err := s.db.WithContext(ctx).
		Where("is_default = ? AND active = ?", true, true).
		Find(&channels).Error
	return channels, err
}
