package models

import "time"

// Period types for CheckSummary.PeriodType
const (
	PeriodHourly  = "hourly"
	PeriodDaily   = "daily"
	PeriodWeekly  = "weekly"
	PeriodMonthly = "monthly"
)

// CheckSummary holds aggregate statistics for one (target, website, period
// type, period start) tuple. Unique per key; recomputing a period overwrites
// the existing row.
type CheckSummary struct {
	ID          int       `json:"id" gorm:"primaryKey;autoIncrement"`
	TargetID    int       `json:"target_id" gorm:"not null;uniqueIndex:idx_summary_key"`
	WebsiteID   int       `json:"website_id" gorm:"not null;uniqueIndex:idx_summary_key"`
	PeriodType  string    `json:"period_type" gorm:"not null;uniqueIndex:idx_summary_key"`
	PeriodStart time.Time `json:"period_start" gorm:"not null;uniqueIndex:idx_summary_key"`
	PeriodEnd   time.Time `json:"period_end" gorm:"not null"`

	TotalChecks      int     `json:"total_checks"`
	UptimeChecks     int     `json:"uptime_checks"`
	UptimeSuccessful int     `json:"uptime_successful"`
	UptimeFailed     int     `json:"uptime_failed"`
	UptimePercentage float64 `json:"uptime_percentage"`

	ResponseTimeMinMs int     `json:"response_time_min_ms"`
	ResponseTimeAvgMs float64 `json:"response_time_avg_ms"`
	ResponseTimeMaxMs int     `json:"response_time_max_ms"`
	ResponseTimeP95Ms int     `json:"response_time_p95_ms"`
	ResponseTimeP99Ms int     `json:"response_time_p99_ms"`

	SSLChecks        int `json:"ssl_checks"`
	SSLSuccessful    int `json:"ssl_successful"`
	SSLFailed        int `json:"ssl_failed"`
	CertsExpiring    int `json:"certificates_expiring"`
	CertsExpired     int `json:"certificates_expired"`
	ContentPassed    int `json:"content_checks_passed"`
	ContentFailed    int `json:"content_checks_failed"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for CheckSummary
func (CheckSummary) TableName() string {
	return "check_summaries"
}
