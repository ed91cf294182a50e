// Package sslcert classifies certificate fetch results into categorical
// statuses using a percentage-of-lifetime expiry heuristic.
package sslcert

import "time"

// Status is the categorical outcome of evaluating a certificate.
type Status string

const (
	StatusValid       Status = "valid"
	StatusExpiresSoon Status = "expires_soon"
	StatusExpired     Status = "expired"
	StatusInvalid     Status = "invalid"
	StatusError       Status = "error"
)

const (
	// expiresSoonPercent flags certificates once less than a third of their
	// issued lifetime remains; short-lived certificates (90-day issuance)
	// hit this around the natural renewal point.
	expiresSoonPercent = 33.0

	// expiresSoonFloorDays is the absolute floor: long-lived certificates are
	// flagged inside their final month even when that is a tiny fraction of
	// their total lifetime.
	expiresSoonFloorDays = 30.0
)

// Evaluate classifies a certificate fetch result. chainValid=false means the
// certificate failed validation (hostname mismatch, broken chain, revoked).
func Evaluate(expiresAt, validFrom *time.Time, chainValid bool) Status {
	return EvaluateAt(time.Now(), expiresAt, validFrom, chainValid)
}

// EvaluateAt is Evaluate with an explicit reference time. Pure and
// deterministic: identical inputs always produce identical output.
func EvaluateAt(now time.Time, expiresAt, validFrom *time.Time, chainValid bool) Status {
	if !chainValid {
		return StatusInvalid
	}
	if expiresAt == nil {
		// No expiry date means no risk signal to act on.
		return StatusValid
	}
	if expiresAt.Before(now) {
		return StatusExpired
	}

	daysRemaining := expiresAt.Sub(now).Hours() / 24

	if validFrom == nil || !validFrom.Before(*expiresAt) {
		// Without a usable issue date only the absolute rule applies.
		if daysRemaining < expiresSoonFloorDays {
			return StatusExpiresSoon
		}
		return StatusValid
	}

	totalLifetimeDays := expiresAt.Sub(*validFrom).Hours() / 24
	percentRemaining := daysRemaining / totalLifetimeDays * 100

	if percentRemaining < expiresSoonPercent || daysRemaining < expiresSoonFloorDays {
		return StatusExpiresSoon
	}
	return StatusValid
}

// DaysUntilExpiration returns whole days between now and expiry, negative
// once expired.
func DaysUntilExpiration(now time.Time, expiresAt time.Time) int {
	return int(expiresAt.Sub(now).Hours() / 24)
}
