package alerting

import (
	"fmt"
	"strings"

	"github.com/dabonzo/sslmonitor-sub001/internal/models"
	"github.com/dabonzo/sslmonitor-sub001/internal/sslcert"
)

// shortLivedCAs identifies issuers with automated short-lifetime renewal;
// the lets_encrypt_renewal alert type only fires for these.
var shortLivedCAs = []string{
	"Let's Encrypt",
	"ZeroSSL",
	"Buypass",
	"Google Trust Services",
}

func isShortLivedCA(issuer string) bool {
	for _, ca := range shortLivedCAs {
		if strings.Contains(issuer, ca) {
			return true
		}
	}
	return false
}

// evaluateTrigger runs one configuration's predicate against a check result.
// applicable=false means the result does not carry the fields this alert
// type inspects (an uptime-only result can neither fire nor resolve a
// certificate alert).
func evaluateTrigger(cfg *models.AlertConfiguration, r *models.CheckResult) (fired, applicable bool, tv *models.TriggerValue) {
	switch cfg.AlertType {
	case models.AlertTypeSSLExpiry:
		if r.SSLStatus == nil || r.DaysUntilExpiration == nil {
			return false, false, nil
		}
		days := *r.DaysUntilExpiration
		fired = days >= 0 && days <= cfg.ThresholdDays
		return fired, true, &models.TriggerValue{DaysUntilExpiration: &days}

	case models.AlertTypeLetsEncryptRenewal:
		if r.SSLStatus == nil || r.DaysUntilExpiration == nil {
			return false, false, nil
		}
		if r.CertIssuer == nil || !isShortLivedCA(*r.CertIssuer) {
			return false, false, nil
		}
		days := *r.DaysUntilExpiration
		fired = days >= 0 && days <= cfg.ThresholdDays
		return fired, true, &models.TriggerValue{DaysUntilExpiration: &days}

	case models.AlertTypeSSLInvalid:
		if r.SSLStatus == nil {
			return false, false, nil
		}
		status := *r.SSLStatus
		fired = status == string(sslcert.StatusInvalid) ||
			status == string(sslcert.StatusExpired) ||
			status == string(sslcert.StatusError)
		return fired, true, &models.TriggerValue{SSLStatus: &status}

	case models.AlertTypeUptimeDown:
		if r.UptimeStatus == nil {
			return false, false, nil
		}
		status := *r.UptimeStatus
		fired = status == models.UptimeStatusDown ||
			r.Status == models.CheckStatusError ||
			r.Status == models.CheckStatusTimeout
		return fired, true, &models.TriggerValue{UptimeStatus: &status}

	case models.AlertTypeResponseTime:
		if r.ResponseTimeMs == nil || cfg.ThresholdResponseTimeMs <= 0 {
			return false, false, nil
		}
		ms := *r.ResponseTimeMs
		fired = ms > cfg.ThresholdResponseTimeMs
		return fired, true, &models.TriggerValue{ResponseTimeMs: &ms}
	}
	return false, false, nil
}

// certEscalated reports whether an expiry alert stopped firing because the
// certificate got worse rather than better. The alert still auto-resolves
// (the ssl_invalid rule covers the new condition) but a recovery notice
// would be misleading.
func certEscalated(alertType string, r *models.CheckResult) bool {
	if alertType != models.AlertTypeSSLExpiry && alertType != models.AlertTypeLetsEncryptRenewal {
		return false
	}
	if r.SSLStatus == nil {
		return false
	}
	switch *r.SSLStatus {
	case string(sslcert.StatusExpired), string(sslcert.StatusInvalid), string(sslcert.StatusError):
		return true
	}
	return false
}

// thresholdSnapshot captures the configured threshold at trigger time.
func thresholdSnapshot(cfg *models.AlertConfiguration) *models.ThresholdValue {
	switch cfg.AlertType {
	case models.AlertTypeSSLExpiry, models.AlertTypeLetsEncryptRenewal:
		days := cfg.ThresholdDays
		return &models.ThresholdValue{Days: &days}
	case models.AlertTypeResponseTime:
		ms := cfg.ThresholdResponseTimeMs
		return &models.ThresholdValue{ResponseTimeMs: &ms}
	}
	return &models.ThresholdValue{}
}

// alertTitle builds the human-readable incident title.
func alertTitle(alertType string, target *models.MonitoredTarget, tv *models.TriggerValue) string {
	switch alertType {
	case models.AlertTypeSSLExpiry:
		if tv != nil && tv.DaysUntilExpiration != nil {
			return fmt.Sprintf("Certificate for %s expires in %d days", target.URL, *tv.DaysUntilExpiration)
		}
		return fmt.Sprintf("Certificate for %s is expiring", target.URL)
	case models.AlertTypeLetsEncryptRenewal:
		return fmt.Sprintf("Automated renewal overdue for %s", target.URL)
	case models.AlertTypeSSLInvalid:
		return fmt.Sprintf("Certificate for %s is invalid", target.URL)
	case models.AlertTypeUptimeDown:
		return fmt.Sprintf("%s is down", target.URL)
	case models.AlertTypeResponseTime:
		if tv != nil && tv.ResponseTimeMs != nil {
			return fmt.Sprintf("%s responded in %dms", target.URL, *tv.ResponseTimeMs)
		}
		return fmt.Sprintf("%s is responding slowly", target.URL)
	}
	return fmt.Sprintf("Alert for %s", target.URL)
}

// defaultSeverity fills in severity when the configuration leaves it empty.
func defaultSeverity(alertType string) string {
	switch alertType {
	case models.AlertTypeUptimeDown, models.AlertTypeSSLInvalid:
		return models.SeverityCritical
	case models.AlertTypeSSLExpiry, models.AlertTypeLetsEncryptRenewal, models.AlertTypeResponseTime:
		return models.SeverityWarning
	}
	return models.SeverityInfo
}
