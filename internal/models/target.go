package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// Uptime status values for MonitoredTarget.UptimeStatus
const (
	UptimeStatusUp      = "up"
	UptimeStatusDown    = "down"
	UptimeStatusUnknown = "unknown"
)

// ContentValidation holds the content checks applied to an uptime probe response.
type ContentValidation struct {
	ExpectedStrings  []string `json:"expected_strings,omitempty"`
	ForbiddenStrings []string `json:"forbidden_strings,omitempty"`
	RegexPatterns    []string `json:"regex_patterns,omitempty"`
	JSRenderWaitSec  int      `json:"js_render_wait_seconds,omitempty"`
}

// Empty reports whether no validation rules are configured.
func (cv *ContentValidation) Empty() bool {
	return cv == nil ||
		(len(cv.ExpectedStrings) == 0 && len(cv.ForbiddenStrings) == 0 && len(cv.RegexPatterns) == 0)
}

// MonitoredTarget represents one URL under uptime/certificate observation.
// At most one record exists per URL; check cycles update the cached status
// fields in place.
type MonitoredTarget struct {
	ID        int    `json:"id" gorm:"primaryKey;autoIncrement"`
	WebsiteID int    `json:"website_id" gorm:"not null;index"`
	URL       string `json:"url" gorm:"uniqueIndex;not null"`

	UptimeCheckEnabled      bool `json:"uptime_check_enabled" gorm:"default:true"`
	CertificateCheckEnabled bool `json:"certificate_check_enabled" gorm:"default:true"`

	// Cached status fields, written once per completed check cycle.
	UptimeStatus        string     `json:"uptime_status" gorm:"default:'unknown'"`
	CertificateStatus   string     `json:"certificate_status" gorm:"default:'unknown'"`
	LastUptimeCheckAt   *time.Time `json:"last_uptime_check_at"`
	LastCertCheckAt     *time.Time `json:"last_certificate_check_at"`
	ConsecutiveFailures int        `json:"consecutive_failures" gorm:"default:0"`

	// Cached certificate fields from the most recent fresh fetch. Issuer and
	// subject are unbounded text; certificates can carry 100+ SANs.
	CertificateIssuer    string     `json:"certificate_issuer" gorm:"type:text"`
	CertificateSubject   string     `json:"certificate_subject" gorm:"type:text"`
	CertificateValidFrom *time.Time `json:"certificate_valid_from"`
	CertificateExpiresAt *time.Time `json:"certificate_expires_at"`

	// CheckIntervalMinutes is the baseline recheck interval; the certificate
	// path tightens it adaptively as expiry approaches.
	CheckIntervalMinutes int `json:"check_interval_minutes" gorm:"default:720"`

	Validation    *ContentValidation `json:"validation" gorm:"-"`
	ValidationRaw string             `json:"-" gorm:"column:validation;type:text"`

	Active    bool      `json:"active" gorm:"default:true;index"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for MonitoredTarget
func (MonitoredTarget) TableName() string {
	return "monitored_targets"
}

// BeforeSave marshals the validation rules to JSON before saving (GORM hook)
func (t *MonitoredTarget) BeforeSave(tx *gorm.DB) error {
	if t.Validation != nil {
		raw, err := json.Marshal(t.Validation)
		if err != nil {
			return err
		}
		t.ValidationRaw = string(raw)
	}
	return nil
}

// AfterFind unmarshals the validation JSON after loading (GORM hook)
func (t *MonitoredTarget) AfterFind(tx *gorm.DB) error {
	if t.ValidationRaw != "" {
		t.Validation = &ContentValidation{}
		return json.Unmarshal([]byte(t.ValidationRaw), t.Validation)
	}
	return nil
}

// CheckInterval returns the configured baseline interval as a duration.
func (t *MonitoredTarget) CheckInterval() time.Duration {
	minutes := t.CheckIntervalMinutes
	if minutes <= 0 {
		minutes = 720
	}
	return time.Duration(minutes) * time.Minute
}
