package alerting

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dabonzo/sslmonitor-sub001/internal/models"
	"github.com/dabonzo/sslmonitor-sub001/internal/storage"
)

type fakeAlertStore struct {
	alerts []*models.Alert
	nextID int
}

func (s *fakeAlertStore) CreateAlert(_ context.Context, a *models.Alert) error {
	s.nextID++
	a.ID = s.nextID
	s.alerts = append(s.alerts, a)
	return nil
}

func (s *fakeAlertStore) GetAlert(_ context.Context, id int) (*models.Alert, error) {
	for _, a := range s.alerts {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *fakeAlertStore) UpdateAlert(_ context.Context, a *models.Alert) error {
	for i, existing := range s.alerts {
		if existing.ID == a.ID {
			s.alerts[i] = a
			return nil
		}
	}
	return storage.ErrNotFound
}

func (s *fakeAlertStore) FindUnresolvedAlert(_ context.Context, targetID int, alertType string) (*models.Alert, error) {
	for _, a := range s.alerts {
		if a.TargetID == targetID && a.AlertType == alertType && !a.Resolved() {
			// Mirror GormStore.FindUnresolvedAlert, which reads into a
			// fresh struct: callers must not alias the stored row.
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeAlertStore) ListUnresolvedAlerts(_ context.Context, _ storage.AlertFilter) ([]*models.Alert, error) {
	var out []*models.Alert
	for _, a := range s.alerts {
		if !a.Resolved() {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *fakeAlertStore) RecordOccurrence(_ context.Context, alertID int, occurredAt time.Time, tv *models.TriggerValue) error {
	for _, a := range s.alerts {
		if a.ID == alertID {
			a.OccurrenceCount++
			a.LastOccurredAt = occurredAt
			a.TriggerValue = tv
			return nil
		}
	}
	return storage.ErrNotFound
}

type fakeConfigStore struct {
	configs []*models.AlertConfiguration
}

func (s *fakeConfigStore) CreateAlertConfig(_ context.Context, c *models.AlertConfiguration) error {
	s.configs = append(s.configs, c)
	return nil
}

func (s *fakeConfigStore) GetAlertConfig(_ context.Context, id int) (*models.AlertConfiguration, error) {
	for _, c := range s.configs {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *fakeConfigStore) UpdateAlertConfig(_ context.Context, _ *models.AlertConfiguration) error {
	return nil
}

func (s *fakeConfigStore) DeleteAlertConfig(_ context.Context, _ int) error { return nil }

func (s *fakeConfigStore) ListAlertConfigs(_ context.Context, _ int) ([]*models.AlertConfiguration, error) {
	return s.configs, nil
}

func (s *fakeConfigStore) ListEnabledConfigsForWebsite(_ context.Context, websiteID int) ([]*models.AlertConfiguration, error) {
	var out []*models.AlertConfiguration
	for _, c := range s.configs {
		if c.Enabled && c.AppliesTo(websiteID) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *fakeConfigStore) MarkTriggered(_ context.Context, configID int, at time.Time) error {
	for _, c := range s.configs {
		if c.ID == configID {
			t := at
			c.LastTriggeredAt = &t
			return nil
		}
	}
	return storage.ErrNotFound
}

type fakeNotifier struct {
	alerts     int
	recoveries int
}

func (n *fakeNotifier) NotifyAlert(_ context.Context, _ *models.Alert, _ *models.AlertConfiguration, _ *models.MonitoredTarget) error {
	n.alerts++
	return nil
}

func (n *fakeNotifier) NotifyRecovery(_ context.Context, _ *models.Alert, _ *models.AlertConfiguration, _ *models.MonitoredTarget) error {
	n.recoveries++
	return nil
}

var engineNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(cfgs ...*models.AlertConfiguration) (*Engine, *fakeAlertStore, *fakeConfigStore, *fakeNotifier) {
	alerts := &fakeAlertStore{}
	configs := &fakeConfigStore{configs: cfgs}
	notifier := &fakeNotifier{}
	e := NewEngine(alerts, configs, notifier, nil, zap.NewNop(), 15*time.Minute)
	e.now = func() time.Time { return engineNow }
	return e, alerts, configs, notifier
}

func expiryConfig(thresholdDays int) *models.AlertConfiguration {
	return &models.AlertConfiguration{
		ID:            1,
		AlertType:     models.AlertTypeSSLExpiry,
		Enabled:       true,
		ThresholdDays: thresholdDays,
	}
}

func testTarget() *models.MonitoredTarget {
	return &models.MonitoredTarget{ID: 7, WebsiteID: 3, URL: "https://example.com"}
}

func sslResult(status string, days int) *models.CheckResult {
	issuer := "Let's Encrypt R11"
	return &models.CheckResult{
		TargetID:            7,
		WebsiteID:           3,
		CheckType:           models.CheckTypeSSL,
		Status:              models.CheckStatusSuccess,
		SSLStatus:           &status,
		CertIssuer:          &issuer,
		DaysUntilExpiration: &days,
	}
}

func uptimeResult(status string, responseMs int) *models.CheckResult {
	return &models.CheckResult{
		TargetID:       7,
		WebsiteID:      3,
		CheckType:      models.CheckTypeUptime,
		Status:         models.CheckStatusSuccess,
		UptimeStatus:   &status,
		ResponseTimeMs: &responseMs,
	}
}

func TestProcessRaisesExpiryAlert(t *testing.T) {
	e, alerts, configs, notifier := newTestEngine(expiryConfig(14))

	err := e.Process(context.Background(), sslResult("expires_soon", 10), testTarget())
	require.NoError(t, err)

	require.Len(t, alerts.alerts, 1)
	a := alerts.alerts[0]
	assert.Equal(t, models.AlertTypeSSLExpiry, a.AlertType)
	assert.Equal(t, 1, a.OccurrenceCount)
	assert.Equal(t, engineNow, a.FirstDetectedAt)
	require.NotNil(t, a.TriggerValue)
	require.NotNil(t, a.TriggerValue.DaysUntilExpiration)
	assert.Equal(t, 10, *a.TriggerValue.DaysUntilExpiration)
	require.NotNil(t, a.Threshold)
	require.NotNil(t, a.Threshold.Days)
	assert.Equal(t, 14, *a.Threshold.Days)

	assert.Equal(t, 1, notifier.alerts)
	assert.Equal(t, 1, a.NotificationsSent)
	require.NotNil(t, configs.configs[0].LastTriggeredAt)
}

func TestRepeatDetectionBumpsOccurrenceWithoutNewAlert(t *testing.T) {
	e, alerts, _, notifier := newTestEngine(expiryConfig(14))
	target := testTarget()

	require.NoError(t, e.Process(context.Background(), sslResult("expires_soon", 10), target))

	// Second detection lands inside the cooldown window.
	e.now = func() time.Time { return engineNow.Add(5 * time.Minute) }
	require.NoError(t, e.Process(context.Background(), sslResult("expires_soon", 10), target))

	require.Len(t, alerts.alerts, 1)
	assert.Equal(t, 2, alerts.alerts[0].OccurrenceCount)
	assert.Equal(t, 1, notifier.alerts, "cooldown must block the repeat notification")
	assert.Equal(t, 1, alerts.alerts[0].NotificationsSent)
}

func TestRepeatDetectionRenotifiesAfterCooldown(t *testing.T) {
	e, alerts, _, notifier := newTestEngine(expiryConfig(14))
	target := testTarget()

	require.NoError(t, e.Process(context.Background(), sslResult("expires_soon", 10), target))

	e.now = func() time.Time { return engineNow.Add(20 * time.Minute) }
	require.NoError(t, e.Process(context.Background(), sslResult("expires_soon", 9), target))

	require.Len(t, alerts.alerts, 1, "repeat detections never open a second alert")
	assert.Equal(t, 2, alerts.alerts[0].OccurrenceCount)
	assert.Equal(t, 2, notifier.alerts)
}

func TestCooldownBlocksNewAlertCreation(t *testing.T) {
	cfg := expiryConfig(14)
	recent := engineNow.Add(-5 * time.Minute)
	cfg.LastTriggeredAt = &recent
	e, alerts, _, notifier := newTestEngine(cfg)

	require.NoError(t, e.Process(context.Background(), sslResult("expires_soon", 10), testTarget()))

	assert.Empty(t, alerts.alerts)
	assert.Zero(t, notifier.alerts)
}

func TestRecoveryResolvesOpenAlert(t *testing.T) {
	e, alerts, _, notifier := newTestEngine(expiryConfig(14))
	target := testTarget()

	require.NoError(t, e.Process(context.Background(), sslResult("expires_soon", 10), target))
	require.Len(t, alerts.alerts, 1)

	// Certificate was renewed; same rule now sees 89 days remaining.
	e.now = func() time.Time { return engineNow.Add(time.Hour) }
	require.NoError(t, e.Process(context.Background(), sslResult("valid", 89), target))

	assert.True(t, alerts.alerts[0].Resolved())
	assert.Equal(t, 1, notifier.recoveries)
}

func TestExpiryCrossingIntoExpiredSkipsRecoveryNotice(t *testing.T) {
	e, alerts, _, notifier := newTestEngine(expiryConfig(14))
	target := testTarget()

	require.NoError(t, e.Process(context.Background(), sslResult("expires_soon", 5), target))
	require.Len(t, alerts.alerts, 1)

	// The certificate ran out instead of being renewed. The expiry alert
	// stops firing and closes, but announcing a recovery would be wrong.
	e.now = func() time.Time { return engineNow.Add(6 * 24 * time.Hour) }
	require.NoError(t, e.Process(context.Background(), sslResult("expired", -1), target))

	assert.True(t, alerts.alerts[0].Resolved())
	assert.Zero(t, notifier.recoveries, "worsened certificate must not announce recovery")
}

func TestUptimeResultDoesNotTouchCertificateAlert(t *testing.T) {
	e, alerts, _, _ := newTestEngine(expiryConfig(14))
	target := testTarget()

	require.NoError(t, e.Process(context.Background(), sslResult("expires_soon", 10), target))
	require.NoError(t, e.Process(context.Background(), uptimeResult(models.UptimeStatusUp, 120), target))

	require.Len(t, alerts.alerts, 1)
	assert.False(t, alerts.alerts[0].Resolved(), "a result without certificate fields must not resolve a certificate alert")
	assert.Equal(t, 1, alerts.alerts[0].OccurrenceCount)
}

func TestUptimeDownAlertAndRecovery(t *testing.T) {
	cfg := &models.AlertConfiguration{ID: 2, AlertType: models.AlertTypeUptimeDown, Enabled: true}
	e, alerts, _, notifier := newTestEngine(cfg)
	target := testTarget()

	require.NoError(t, e.Process(context.Background(), uptimeResult(models.UptimeStatusDown, 0), target))
	require.Len(t, alerts.alerts, 1)
	assert.Equal(t, models.SeverityCritical, alerts.alerts[0].Severity)

	e.now = func() time.Time { return engineNow.Add(30 * time.Minute) }
	require.NoError(t, e.Process(context.Background(), uptimeResult(models.UptimeStatusUp, 150), target))
	assert.True(t, alerts.alerts[0].Resolved())
	assert.Equal(t, 1, notifier.recoveries)
}

func TestResponseTimeThreshold(t *testing.T) {
	cfg := &models.AlertConfiguration{
		ID:                      3,
		AlertType:               models.AlertTypeResponseTime,
		Enabled:                 true,
		ThresholdResponseTimeMs: 500,
	}
	e, alerts, _, _ := newTestEngine(cfg)
	target := testTarget()

	require.NoError(t, e.Process(context.Background(), uptimeResult(models.UptimeStatusUp, 500), target))
	assert.Empty(t, alerts.alerts, "threshold is strictly greater-than")

	require.NoError(t, e.Process(context.Background(), uptimeResult(models.UptimeStatusUp, 501), target))
	require.Len(t, alerts.alerts, 1)
	require.NotNil(t, alerts.alerts[0].TriggerValue.ResponseTimeMs)
	assert.Equal(t, 501, *alerts.alerts[0].TriggerValue.ResponseTimeMs)
}

func TestLetsEncryptRenewalRequiresShortLivedIssuer(t *testing.T) {
	cfg := &models.AlertConfiguration{
		ID:            4,
		AlertType:     models.AlertTypeLetsEncryptRenewal,
		Enabled:       true,
		ThresholdDays: 10,
	}
	e, alerts, _, _ := newTestEngine(cfg)
	target := testTarget()

	commercial := sslResult("expires_soon", 5)
	issuer := "DigiCert Global G2"
	commercial.CertIssuer = &issuer
	require.NoError(t, e.Process(context.Background(), commercial, target))
	assert.Empty(t, alerts.alerts)

	require.NoError(t, e.Process(context.Background(), sslResult("expires_soon", 5), target))
	require.Len(t, alerts.alerts, 1)
}

func TestSSLInvalidAlert(t *testing.T) {
	cfg := &models.AlertConfiguration{ID: 5, AlertType: models.AlertTypeSSLInvalid, Enabled: true}
	e, alerts, _, _ := newTestEngine(cfg)

	require.NoError(t, e.Process(context.Background(), sslResult("invalid", 30), testTarget()))
	require.Len(t, alerts.alerts, 1)
	require.NotNil(t, alerts.alerts[0].TriggerValue.SSLStatus)
	assert.Equal(t, "invalid", *alerts.alerts[0].TriggerValue.SSLStatus)
}

func TestAcknowledgeKeepsAlertOpen(t *testing.T) {
	e, alerts, _, _ := newTestEngine(expiryConfig(14))
	require.NoError(t, e.Process(context.Background(), sslResult("expires_soon", 10), testTarget()))

	a, err := e.Acknowledge(context.Background(), alerts.alerts[0].ID, 42, "renewal scheduled")
	require.NoError(t, err)
	require.NotNil(t, a.AcknowledgedAt)
	assert.Equal(t, 42, *a.AcknowledgedBy)
	assert.Equal(t, "renewal scheduled", a.AcknowledgeNote)
	assert.False(t, a.Resolved())
}

func TestSuppressedAlertSkipsNotifications(t *testing.T) {
	e, alerts, _, notifier := newTestEngine(expiryConfig(14))
	target := testTarget()

	require.NoError(t, e.Process(context.Background(), sslResult("expires_soon", 10), target))
	until := engineNow.Add(2 * time.Hour)
	_, err := e.Suppress(context.Background(), alerts.alerts[0].ID, until)
	require.NoError(t, err)

	e.now = func() time.Time { return engineNow.Add(time.Hour) }
	require.NoError(t, e.Process(context.Background(), sslResult("expires_soon", 9), target))

	assert.Equal(t, 2, alerts.alerts[0].OccurrenceCount, "suppression still counts occurrences")
	assert.Equal(t, 1, notifier.alerts, "suppression mutes repeat notifications")
}
