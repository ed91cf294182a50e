package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dabonzo/sslmonitor-sub001/internal/models"
	"github.com/dabonzo/sslmonitor-sub001/internal/probe"
	"github.com/dabonzo/sslmonitor-sub001/internal/sslcert"
)

type fakeTargetWriter struct {
	updated int
	fail    bool
}

func (f *fakeTargetWriter) UpdateTarget(ctx context.Context, t *models.MonitoredTarget) error {
	f.updated++
	if f.fail {
		return errors.New("database unavailable")
	}
	return nil
}

type fakeProber struct {
	uptime      *probe.UptimeResult
	uptimeErr   error
	cert        *probe.CertificateResult
	certErr     error
	certCalls   int
	uptimeCalls int
}

func (f *fakeProber) ProbeUptime(ctx context.Context, url string, opts probe.UptimeOptions) (*probe.UptimeResult, error) {
	f.uptimeCalls++
	if f.uptimeErr != nil {
		return nil, f.uptimeErr
	}
	return f.uptime, nil
}

func (f *fakeProber) ProbeCertificate(ctx context.Context, url string) (*probe.CertificateResult, error) {
	f.certCalls++
	if f.certErr != nil {
		return nil, f.certErr
	}
	return f.cert, nil
}

func newTestTarget() *models.MonitoredTarget {
	return &models.MonitoredTarget{
		ID:                      1,
		WebsiteID:               10,
		URL:                     "https://example.com",
		UptimeCheckEnabled:      true,
		CertificateCheckEnabled: true,
		UptimeStatus:            models.UptimeStatusUnknown,
		CertificateStatus:       "unknown",
		Active:                  true,
	}
}

func newTestExecutor(t *testing.T, p probe.Prober, w TargetWriter) *Executor {
	t.Helper()
	return NewExecutor(w, p, zap.NewNop())
}

func TestExecuteUptimeSuccess(t *testing.T) {
	prober := &fakeProber{
		uptime: &probe.UptimeResult{
			StatusCode:    200,
			ResponseTime:  120 * time.Millisecond,
			RedirectCount: 1,
			FinalURL:      "https://example.com/",
		},
	}
	writer := &fakeTargetWriter{}
	target := newTestTarget()

	result := newTestExecutor(t, prober, writer).Execute(context.Background(), target, models.CheckTypeUptime, models.TriggerScheduled)

	require.NotNil(t, result)
	assert.Equal(t, models.CheckStatusSuccess, result.Status)
	require.NotNil(t, result.UptimeStatus)
	assert.Equal(t, models.UptimeStatusUp, *result.UptimeStatus)
	assert.Equal(t, 200, *result.HTTPStatusCode)
	assert.Equal(t, 120, *result.ResponseTimeMs)
	assert.Equal(t, models.UptimeStatusUp, target.UptimeStatus)
	assert.Zero(t, target.ConsecutiveFailures)
	assert.False(t, result.CompletedAt.Before(result.StartedAt))
	assert.Equal(t, 1, writer.updated)
	assert.Nil(t, result.SSLStatus, "uptime-only check must not populate certificate fields")
}

func TestExecuteHTTPErrorStatusIsFailedNotError(t *testing.T) {
	prober := &fakeProber{
		uptime: &probe.UptimeResult{StatusCode: 503, ResponseTime: 80 * time.Millisecond},
	}
	target := newTestTarget()

	result := newTestExecutor(t, prober, &fakeTargetWriter{}).Execute(context.Background(), target, models.CheckTypeUptime, models.TriggerScheduled)

	// HTTP 5xx is a legitimate outcome, not a transport error.
	assert.Equal(t, models.CheckStatusFailed, result.Status)
	assert.Equal(t, models.UptimeStatusDown, *result.UptimeStatus)
	assert.Equal(t, 1, target.ConsecutiveFailures)
}

func TestExecuteNeverPropagatesProbeFailure(t *testing.T) {
	prober := &fakeProber{
		uptimeErr: errors.New("dial tcp: connection refused"),
		certErr:   errors.New("dial tcp: connection refused"),
	}
	target := newTestTarget()

	result := newTestExecutor(t, prober, &fakeTargetWriter{}).Execute(context.Background(), target, models.CheckTypeBoth, models.TriggerScheduled)

	require.NotNil(t, result)
	assert.Equal(t, models.CheckStatusError, result.Status)
	assert.NotEmpty(t, result.ErrorMessage)
	require.NotNil(t, result.UptimeStatus)
	assert.Equal(t, models.UptimeStatusDown, *result.UptimeStatus)
	require.NotNil(t, result.SSLStatus)
	assert.Equal(t, string(sslcert.StatusError), *result.SSLStatus)
	assert.False(t, result.CompletedAt.Before(result.StartedAt))
}

func TestExecuteBothProbesFailKeepsBothMessages(t *testing.T) {
	prober := &fakeProber{
		uptimeErr: errors.New("dial tcp: connection refused"),
		certErr:   errors.New("tls handshake failure"),
	}
	e := newTestExecutor(t, prober, &fakeTargetWriter{})

	// Repeated cycles keep the concurrent probes honest under the race
	// detector; the merged outcome must be identical every time.
	for i := 0; i < 50; i++ {
		target := newTestTarget()
		result := e.Execute(context.Background(), target, models.CheckTypeBoth, models.TriggerScheduled)

		assert.Equal(t, models.CheckStatusError, result.Status)
		assert.Contains(t, result.ErrorMessage, "uptime probe failed")
		assert.Contains(t, result.ErrorMessage, "certificate probe failed")
	}
}

func TestMergeOutcomesSeverity(t *testing.T) {
	tests := []struct {
		name              string
		aStatus, aMsg     string
		bStatus, bMsg     string
		wantStatus, wants string
	}{
		{"timeout beats error", models.CheckStatusTimeout, "timed out", models.CheckStatusError, "refused", models.CheckStatusTimeout, "timed out"},
		{"error beats failed", models.CheckStatusFailed, "", models.CheckStatusError, "refused", models.CheckStatusError, "refused"},
		{"failed beats success", models.CheckStatusSuccess, "", models.CheckStatusFailed, "", models.CheckStatusFailed, ""},
		{"equal severity joins messages", models.CheckStatusError, "uptime down", models.CheckStatusError, "cert gone", models.CheckStatusError, "uptime down; cert gone"},
		{"winner without message borrows", models.CheckStatusError, "", models.CheckStatusSuccess, "chain warning", models.CheckStatusError, "chain warning"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, msg := mergeOutcomes(tt.aStatus, tt.aMsg, tt.bStatus, tt.bMsg)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wants, msg)
		})
	}
}

func TestExecuteContentValidationFailureMarksDown(t *testing.T) {
	failed := false
	prober := &fakeProber{
		uptime: &probe.UptimeResult{
			StatusCode:    200,
			ResponseTime:  50 * time.Millisecond,
			ContentPassed: &failed,
			ContentDetail: `expected string "Welcome" not found`,
		},
	}
	target := newTestTarget()

	result := newTestExecutor(t, prober, &fakeTargetWriter{}).Execute(context.Background(), target, models.CheckTypeUptime, models.TriggerScheduled)

	assert.Equal(t, models.CheckStatusFailed, result.Status)
	assert.Equal(t, models.UptimeStatusDown, *result.UptimeStatus)
	require.NotNil(t, result.ContentCheckPassed)
	assert.False(t, *result.ContentCheckPassed)
}

func TestExecuteCertificateEvaluation(t *testing.T) {
	now := time.Now()
	validFrom := now.Add(-75 * 24 * time.Hour)
	expires := now.Add(15 * 24 * time.Hour)
	prober := &fakeProber{
		cert: &probe.CertificateResult{
			Issuer:     "CN=R3,O=Let's Encrypt,C=US",
			Subject:    "CN=example.com",
			SANs:       []string{"example.com", "www.example.com"},
			ValidFrom:  validFrom,
			ExpiresAt:  expires,
			ChainValid: true,
		},
	}
	target := newTestTarget()

	result := newTestExecutor(t, prober, &fakeTargetWriter{}).Execute(context.Background(), target, models.CheckTypeSSL, models.TriggerScheduled)

	require.NotNil(t, result.SSLStatus)
	// 15 of 90 days remaining (16.7%) is inside both expiry rules.
	assert.Equal(t, string(sslcert.StatusExpiresSoon), *result.SSLStatus)
	assert.Equal(t, 14, *result.DaysUntilExpiration) // 15 days minus elapsed fraction rounds down
	assert.Contains(t, *result.CertSubject, "www.example.com")
	assert.Equal(t, string(sslcert.StatusExpiresSoon), target.CertificateStatus)
	assert.False(t, result.FromCache)
	assert.Equal(t, models.CheckStatusSuccess, result.Status)
}

func TestExecuteCertificateCacheReuse(t *testing.T) {
	now := time.Now()
	lastCheck := now.Add(-1 * time.Hour)
	expires := now.Add(200 * 24 * time.Hour)
	validFrom := now.Add(-100 * 24 * time.Hour)

	target := newTestTarget()
	target.CertificateStatus = string(sslcert.StatusValid)
	target.CertificateIssuer = "CN=Example CA"
	target.CertificateSubject = "CN=example.com"
	target.LastCertCheckAt = &lastCheck
	target.CertificateExpiresAt = &expires
	target.CertificateValidFrom = &validFrom

	prober := &fakeProber{}
	result := newTestExecutor(t, prober, &fakeTargetWriter{}).Execute(context.Background(), target, models.CheckTypeSSL, models.TriggerScheduled)

	assert.Zero(t, prober.certCalls, "recent healthy certificate must be served from cache")
	assert.True(t, result.FromCache)
	assert.Equal(t, string(sslcert.StatusValid), *result.SSLStatus)
	assert.Equal(t, models.CheckStatusSuccess, result.Status)
}

func TestExecuteInvalidCertificateAlwaysRefetched(t *testing.T) {
	now := time.Now()
	lastCheck := now.Add(-1 * time.Minute)
	expires := now.Add(200 * 24 * time.Hour)

	target := newTestTarget()
	target.CertificateStatus = string(sslcert.StatusInvalid)
	target.LastCertCheckAt = &lastCheck
	target.CertificateExpiresAt = &expires

	validFrom := now.Add(-10 * 24 * time.Hour)
	prober := &fakeProber{
		cert: &probe.CertificateResult{
			Issuer:     "CN=Example CA",
			Subject:    "CN=example.com",
			ValidFrom:  validFrom,
			ExpiresAt:  expires,
			ChainValid: true,
		},
	}

	result := newTestExecutor(t, prober, &fakeTargetWriter{}).Execute(context.Background(), target, models.CheckTypeSSL, models.TriggerScheduled)

	assert.Equal(t, 1, prober.certCalls, "invalid status must force a fresh fetch")
	assert.Equal(t, string(sslcert.StatusValid), *result.SSLStatus)
	assert.Equal(t, string(sslcert.StatusValid), target.CertificateStatus)
}

func TestExecuteExpiringCertificateRefetchedDespiteRecentCheck(t *testing.T) {
	now := time.Now()
	lastCheck := now.Add(-5 * time.Hour)
	expires := now.Add(5 * 24 * time.Hour)
	validFrom := now.Add(-85 * 24 * time.Hour)

	target := newTestTarget()
	target.CertificateStatus = string(sslcert.StatusExpiresSoon)
	target.LastCertCheckAt = &lastCheck
	target.CertificateExpiresAt = &expires
	target.CertificateValidFrom = &validFrom

	prober := &fakeProber{
		cert: &probe.CertificateResult{
			Issuer:     "CN=Example CA",
			Subject:    "CN=example.com",
			ValidFrom:  validFrom,
			ExpiresAt:  expires,
			ChainValid: true,
		},
	}

	newTestExecutor(t, prober, &fakeTargetWriter{}).Execute(context.Background(), target, models.CheckTypeSSL, models.TriggerScheduled)

	// Inside the 7-day window the recheck interval tightens to 4 hours.
	assert.Equal(t, 1, prober.certCalls)
}

func TestExecuteDisabledChecksSkipped(t *testing.T) {
	target := newTestTarget()
	target.UptimeCheckEnabled = false
	target.CertificateCheckEnabled = false

	prober := &fakeProber{}
	result := newTestExecutor(t, prober, &fakeTargetWriter{}).Execute(context.Background(), target, models.CheckTypeBoth, models.TriggerScheduled)

	assert.Zero(t, prober.uptimeCalls)
	assert.Zero(t, prober.certCalls)
	assert.Nil(t, result.UptimeStatus)
	assert.Nil(t, result.SSLStatus)
	assert.Equal(t, models.CheckStatusSuccess, result.Status)
}

func TestExecuteTimeoutProducesSyntheticResult(t *testing.T) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	prober := &fakeProber{uptimeErr: context.DeadlineExceeded}
	target := newTestTarget()

	result := newTestExecutor(t, prober, &fakeTargetWriter{}).Execute(ctx, target, models.CheckTypeUptime, models.TriggerScheduled)

	require.NotNil(t, result)
	assert.Equal(t, models.CheckStatusTimeout, result.Status)
	assert.Equal(t, models.UptimeStatusDown, *result.UptimeStatus)
	assert.NotEmpty(t, result.ErrorMessage)
}
