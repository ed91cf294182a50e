package models

import "time"

// Check types for CheckResult.CheckType
const (
	CheckTypeUptime = "uptime"
	CheckTypeSSL    = "ssl_certificate"
	CheckTypeBoth   = "both"
)

// Trigger types for CheckResult.TriggerType
const (
	TriggerScheduled       = "scheduled"
	TriggerManualImmediate = "manual_immediate"
	TriggerManualBulk      = "manual_bulk"
	TriggerSystem          = "system"
)

// Overall statuses for CheckResult.Status
const (
	CheckStatusSuccess = "success"
	CheckStatusFailed  = "failed"
	CheckStatusTimeout = "timeout"
	CheckStatusError   = "error"
)

// CheckResult is the immutable record of one check execution for one target.
// Rows are created once per check cycle and never mutated.
type CheckResult struct {
	ID          int    `json:"id" gorm:"primaryKey;autoIncrement"`
	TargetID    int    `json:"target_id" gorm:"not null;index:idx_target_completed"`
	WebsiteID   int    `json:"website_id" gorm:"not null;index"`
	CheckType   string `json:"check_type" gorm:"not null"`
	TriggerType string `json:"trigger_type" gorm:"not null;default:'scheduled'"`

	StartedAt   time.Time `json:"started_at" gorm:"not null"`
	CompletedAt time.Time `json:"completed_at" gorm:"not null;index:idx_target_completed,sort:desc"`

	Status       string `json:"status" gorm:"not null;index"`
	ErrorMessage string `json:"error_message" gorm:"type:text"`

	// Uptime sub-fields, populated for uptime and combined checks.
	UptimeStatus   *string `json:"uptime_status"`
	HTTPStatusCode *int    `json:"http_status_code"`
	ResponseTimeMs *int    `json:"response_time_ms"`
	RedirectCount  *int    `json:"redirect_count"`
	FinalURL       *string `json:"final_url" gorm:"type:text"`

	// Certificate sub-fields, populated for ssl and combined checks. Issuer
	// and subject are unbounded text and must never be truncated.
	SSLStatus           *string    `json:"ssl_status"`
	CertIssuer          *string    `json:"certificate_issuer" gorm:"type:text"`
	CertSubject         *string    `json:"certificate_subject" gorm:"type:text"`
	CertValidFrom       *time.Time `json:"certificate_valid_from"`
	CertExpiresAt       *time.Time `json:"certificate_expires_at"`
	DaysUntilExpiration *int       `json:"days_until_expiration"`
	FromCache           bool       `json:"from_cache" gorm:"default:false"`

	// Content-validation sub-fields.
	ContentCheckPassed *bool  `json:"content_check_passed"`
	ContentCheckDetail string `json:"content_check_detail" gorm:"type:text"`
}

// TableName specifies the table name for CheckResult
func (CheckResult) TableName() string {
	return "check_results"
}

// HasUptime reports whether the uptime sub-fields are populated.
func (r *CheckResult) HasUptime() bool {
	return r.UptimeStatus != nil
}

// HasCertificate reports whether the certificate sub-fields are populated.
func (r *CheckResult) HasCertificate() bool {
	return r.SSLStatus != nil
}
