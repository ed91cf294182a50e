package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dabonzo/sslmonitor-sub001/internal/models"
	"github.com/dabonzo/sslmonitor-sub001/internal/probe"
	"github.com/dabonzo/sslmonitor-sub001/internal/sslcert"
)

// TargetWriter persists a target's cached status fields.
type TargetWriter interface {
	UpdateTarget(ctx context.Context, t *models.MonitoredTarget) error
}

// Executor runs one check cycle for one target and produces a CheckResult.
// Every failure path yields a well-formed result; Execute never returns an
// error to its caller.
type Executor struct {
	targets TargetWriter
	prober  probe.Prober
	logger  *zap.Logger
	now     func() time.Time
}

// NewExecutor creates a check executor.
func NewExecutor(targets TargetWriter, prober probe.Prober, logger *zap.Logger) *Executor {
	return &Executor{
		targets: targets,
		prober:  prober,
		logger:  logger.Named("executor"),
		now:     time.Now,
	}
}

// Execute runs the requested checks for the target. The uptime and
// certificate probes are causally independent and run concurrently; the
// cycle blocks until both finish or ctx expires.
func (e *Executor) Execute(ctx context.Context, target *models.MonitoredTarget, checkType, trigger string) *models.CheckResult {
	started := e.now()
	result := &models.CheckResult{
		TargetID:    target.ID,
		WebsiteID:   target.WebsiteID,
		CheckType:   checkType,
		TriggerType: trigger,
		StartedAt:   started,
		Status:      models.CheckStatusSuccess,
	}

	doUptime := (checkType == models.CheckTypeUptime || checkType == models.CheckTypeBoth) &&
		target.UptimeCheckEnabled
	doSSL := (checkType == models.CheckTypeSSL || checkType == models.CheckTypeBoth) &&
		target.CertificateCheckEnabled

	// The two probes write disjoint result and target fields; their status
	// and error message are merged only after both have finished.
	var (
		wg           sync.WaitGroup
		uptimeStatus = models.CheckStatusSuccess
		certStatus   = models.CheckStatusSuccess
		uptimeMsg    string
		certMsg      string
	)
	if doUptime {
		wg.Add(1)
		go func() {
			defer wg.Done()
			uptimeStatus, uptimeMsg = e.checkUptime(ctx, target, result)
		}()
	}
	if doSSL {
		wg.Add(1)
		go func() {
			defer wg.Done()
			certStatus, certMsg = e.checkCertificate(ctx, target, result)
		}()
	}
	wg.Wait()

	result.Status, result.ErrorMessage = mergeOutcomes(uptimeStatus, uptimeMsg, certStatus, certMsg)

	completed := e.now()
	if completed.Before(started) {
		completed = started
	}
	result.CompletedAt = completed

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		result.Status = models.CheckStatusTimeout
		if result.ErrorMessage == "" {
			result.ErrorMessage = "check cycle timed out"
		}
	}

	if err := e.targets.UpdateTarget(ctx, target); err != nil {
		// Cached fields refresh on the next cycle; the result itself stands.
		e.logger.Error("failed to persist target status",
			zap.Int("target_id", target.ID),
			zap.Error(err))
	}

	return result
}

// statusRank orders check statuses by severity for outcome merging.
func statusRank(status string) int {
	switch status {
	case models.CheckStatusTimeout:
		return 3
	case models.CheckStatusError:
		return 2
	case models.CheckStatusFailed:
		return 1
	default:
		return 0
	}
}

// mergeOutcomes combines the two probes' verdicts, keeping the more severe
// status. Equal severities keep both messages.
func mergeOutcomes(aStatus, aMsg, bStatus, bMsg string) (string, string) {
	switch ar, br := statusRank(aStatus), statusRank(bStatus); {
	case ar > br:
		if aMsg == "" {
			aMsg = bMsg
		}
		return aStatus, aMsg
	case br > ar:
		if bMsg == "" {
			bMsg = aMsg
		}
		return bStatus, bMsg
	default:
		msg := aMsg
		if bMsg != "" && bMsg != aMsg {
			if msg != "" {
				msg += "; " + bMsg
			} else {
				msg = bMsg
			}
		}
		return aStatus, msg
	}
}

// checkUptime probes the target over HTTP and fills the uptime sub-fields.
// It returns the probe's verdict instead of writing the shared status.
func (e *Executor) checkUptime(ctx context.Context, target *models.MonitoredTarget, result *models.CheckResult) (string, string) {
	opts := probe.UptimeOptions{
		FollowRedirects: true,
		Validation:      target.Validation,
	}

	res, err := e.prober.ProbeUptime(ctx, target.URL, opts)
	now := e.now()
	target.LastUptimeCheckAt = &now

	if err != nil {
		status := models.UptimeStatusDown
		result.UptimeStatus = &status
		target.UptimeStatus = models.UptimeStatusDown
		target.ConsecutiveFailures++
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return models.CheckStatusTimeout, fmt.Sprintf("uptime probe timed out: %v", err)
		}
		return models.CheckStatusError, fmt.Sprintf("uptime probe failed: %v", err)
	}

	responseTime := int(res.ResponseTime.Milliseconds())
	result.HTTPStatusCode = &res.StatusCode
	result.ResponseTimeMs = &responseTime
	result.RedirectCount = &res.RedirectCount
	result.FinalURL = &res.FinalURL
	result.ContentCheckPassed = res.ContentPassed
	result.ContentCheckDetail = res.ContentDetail

	up := res.StatusCode < 400
	if res.ContentPassed != nil && !*res.ContentPassed {
		up = false
	}

	status := models.UptimeStatusUp
	verdict := models.CheckStatusSuccess
	if !up {
		status = models.UptimeStatusDown
		verdict = models.CheckStatusFailed
		target.ConsecutiveFailures++
	} else {
		target.ConsecutiveFailures = 0
	}
	result.UptimeStatus = &status
	target.UptimeStatus = status
	return verdict, ""
}

// checkCertificate fetches and evaluates the target's certificate, reusing
// the cached evaluation when the adaptive recheck interval has not elapsed.
func (e *Executor) checkCertificate(ctx context.Context, target *models.MonitoredTarget, result *models.CheckResult) (string, string) {
	now := e.now()

	if !e.needsFreshCertificate(target, now) {
		e.fillCertificateFromCache(target, result, now)
		return models.CheckStatusSuccess, ""
	}

	res, err := e.prober.ProbeCertificate(ctx, target.URL)
	target.LastCertCheckAt = &now

	if err != nil {
		status := string(sslcert.StatusError)
		result.SSLStatus = &status
		target.CertificateStatus = status
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return models.CheckStatusTimeout, fmt.Sprintf("certificate probe timed out: %v", err)
		}
		return models.CheckStatusError, fmt.Sprintf("certificate probe failed: %v", err)
	}

	evaluated := sslcert.EvaluateAt(now, &res.ExpiresAt, &res.ValidFrom, res.ChainValid)
	status := string(evaluated)
	subject := res.Subject
	if len(res.SANs) > 0 {
		subject = subject + "; SANs: " + strings.Join(res.SANs, ", ")
	}
	days := sslcert.DaysUntilExpiration(now, res.ExpiresAt)

	result.SSLStatus = &status
	result.CertIssuer = &res.Issuer
	result.CertSubject = &subject
	result.CertValidFrom = &res.ValidFrom
	result.CertExpiresAt = &res.ExpiresAt
	result.DaysUntilExpiration = &days

	target.CertificateStatus = status
	target.CertificateIssuer = res.Issuer
	target.CertificateSubject = subject
	target.CertificateValidFrom = &res.ValidFrom
	target.CertificateExpiresAt = &res.ExpiresAt

	if evaluated == sslcert.StatusInvalid || evaluated == sslcert.StatusExpired {
		return models.CheckStatusFailed, res.ChainError
	}
	return models.CheckStatusSuccess, res.ChainError
}

// fillCertificateFromCache answers the certificate check from the target's
// cached fields, annotated as cache-sourced.
func (e *Executor) fillCertificateFromCache(target *models.MonitoredTarget, result *models.CheckResult, now time.Time) {
	status := target.CertificateStatus
	result.SSLStatus = &status
	result.FromCache = true
	if target.CertificateIssuer != "" {
		issuer := target.CertificateIssuer
		result.CertIssuer = &issuer
	}
	if target.CertificateSubject != "" {
		subject := target.CertificateSubject
		result.CertSubject = &subject
	}
	result.CertValidFrom = target.CertificateValidFrom
	result.CertExpiresAt = target.CertificateExpiresAt
	if target.CertificateExpiresAt != nil {
		days := sslcert.DaysUntilExpiration(now, *target.CertificateExpiresAt)
		result.DaysUntilExpiration = &days
	}
}
