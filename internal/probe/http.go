package probe

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dabonzo/sslmonitor-sub001/internal/models"
)

const defaultUserAgent = "SSLMonitor/1.0 (+https://github.com/dabonzo/sslmonitor-sub001)"

// maxBodyBytes caps how much of a response body is read for content checks.
const maxBodyBytes = 2 << 20

// NetworkProber is the production Prober backed by net/http and crypto/tls.
type NetworkProber struct {
	ssrf     *SSRFProtection
	renderer *Renderer
	logger   *zap.Logger
}

// NewNetworkProber creates a prober. renderer may be nil to disable
// JS-rendered content validation.
func NewNetworkProber(ssrf *SSRFProtection, renderer *Renderer, logger *zap.Logger) *NetworkProber {
	return &NetworkProber{
		ssrf:     ssrf,
		renderer: renderer,
		logger:   logger.Named("prober"),
	}
}

// ProbeUptime performs one HTTP probe and applies any content-validation
// rules to the response body.
func (p *NetworkProber) ProbeUptime(ctx context.Context, url string, opts UptimeOptions) (*UptimeResult, error) {
	if err := p.ssrf.ValidateURL(url); err != nil {
		return nil, fmt.Errorf("URL validation failed: %w", err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	maxRedirects := opts.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = 10
	}

	redirects := 0
	client := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{Timeout: timeout}).DialContext,
		},
	}
	if opts.FollowRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			redirects = len(via)
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		}
	} else {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	result := &UptimeResult{
		StatusCode:    resp.StatusCode,
		ResponseTime:  elapsed,
		RedirectCount: redirects,
		FinalURL:      resp.Request.URL.String(),
	}

	if !opts.Validation.Empty() {
		body, err := p.responseBody(ctx, url, resp, opts)
		if err != nil {
			failed := false
			result.ContentPassed = &failed
			result.ContentDetail = fmt.Sprintf("failed to read response body: %v", err)
			return result, nil
		}
		passed, detail := validateContent(body, opts.Validation)
		result.ContentPassed = &passed
		result.ContentDetail = detail
	}

	return result, nil
}

// responseBody returns the document to validate: the rendered DOM when a JS
// wait is configured and a renderer is available, the raw body otherwise.
func (p *NetworkProber) responseBody(ctx context.Context, url string, resp *http.Response, opts UptimeOptions) (string, error) {
	if opts.Validation.JSRenderWaitSec > 0 && p.renderer != nil {
		html, err := p.renderer.RenderedHTML(ctx, url, time.Duration(opts.Validation.JSRenderWaitSec)*time.Second)
		if err == nil {
			return html, nil
		}
		p.logger.Warn("JS render failed, falling back to raw body",
			zap.String("url", url),
			zap.Error(err))
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// validateContent applies expected/forbidden substring and regex rules.
// Returns false with the first failing rule's description.
func validateContent(body string, cv *models.ContentValidation) (bool, string) {
	for _, expected := range cv.ExpectedStrings {
		if !strings.Contains(body, expected) {
			return false, fmt.Sprintf("expected string %q not found", expected)
		}
	}
	for _, forbidden := range cv.ForbiddenStrings {
		if strings.Contains(body, forbidden) {
			return false, fmt.Sprintf("forbidden string %q found", forbidden)
		}
	}
	for _, pattern := range cv.RegexPatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false, fmt.Sprintf("invalid regex pattern %q: %v", pattern, err)
		}
		if !re.MatchString(body) {
			return false, fmt.Sprintf("regex pattern %q did not match", pattern)
		}
	}
	return true, "all content checks passed"
}
