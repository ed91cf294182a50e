package monitor

import (
	"time"

	"github.com/dabonzo/sslmonitor-sub001/internal/models"
	"github.com/dabonzo/sslmonitor-sub001/internal/sslcert"
)

// needsFreshCertificate decides whether this cycle performs a fresh TLS
// fetch or reuses the cached evaluation.
func (e *Executor) needsFreshCertificate(target *models.MonitoredTarget, now time.Time) bool {
	// An invalid certificate is always refetched so recovery is caught
	// promptly.
	if target.CertificateStatus == string(sslcert.StatusInvalid) {
		return true
	}
	// Nothing cached yet.
	if target.LastCertCheckAt == nil || target.CertificateExpiresAt == nil {
		return true
	}

	// The adaptive windows only ever tighten the configured interval.
	interval := target.CheckInterval()
	days := sslcert.DaysUntilExpiration(now, *target.CertificateExpiresAt)
	switch {
	case days <= sslcert.RecheckSoonWindowDays:
		if sslcert.RecheckSoonInterval < interval {
			interval = sslcert.RecheckSoonInterval
		}
	case days <= sslcert.RecheckNearWindowDays:
		if sslcert.RecheckNearInterval < interval {
			interval = sslcert.RecheckNearInterval
		}
	}

	return now.Sub(*target.LastCertCheckAt) >= interval
}
