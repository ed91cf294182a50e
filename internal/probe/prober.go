package probe

import (
	"context"
	"time"

	"github.com/dabonzo/sslmonitor-sub001/internal/models"
)

// UptimeOptions configures a single HTTP probe.
type UptimeOptions struct {
	Timeout         time.Duration
	Method          string
	UserAgent       string
	FollowRedirects bool
	MaxRedirects    int
	Validation      *models.ContentValidation
}

// UptimeResult is the raw outcome of one HTTP probe.
type UptimeResult struct {
	StatusCode    int
	ResponseTime  time.Duration
	RedirectCount int
	FinalURL      string

	// Content validation outcome; nil when no rules were configured.
	ContentPassed *bool
	ContentDetail string
}

// CertificateResult is the raw outcome of one TLS certificate fetch. Issuer,
// Subject and SANs are unbounded; callers must not truncate them.
type CertificateResult struct {
	Issuer     string
	Subject    string
	SANs       []string
	ValidFrom  time.Time
	ExpiresAt  time.Time
	ChainValid bool
	ChainError string
}

// Prober performs a single uptime probe or certificate fetch for a URL. The
// check executor depends on this interface only; the concrete network client
// and test doubles both satisfy it.
type Prober interface {
	ProbeUptime(ctx context.Context, url string, opts UptimeOptions) (*UptimeResult, error)
	ProbeCertificate(ctx context.Context, url string) (*CertificateResult, error)
}
