package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// Alert types
const (
	AlertTypeSSLExpiry          = "ssl_expiry"
	AlertTypeSSLInvalid         = "ssl_invalid"
	AlertTypeUptimeDown         = "uptime_down"
	AlertTypeResponseTime       = "response_time"
	AlertTypeLetsEncryptRenewal = "lets_encrypt_renewal"
)

// Severity levels
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// TriggerValue is the measurement snapshot that caused an alert. Only the
// fields relevant to the alert type are set.
type TriggerValue struct {
	DaysUntilExpiration *int    `json:"days_until_expiration,omitempty"`
	SSLStatus           *string `json:"ssl_status,omitempty"`
	UptimeStatus        *string `json:"uptime_status,omitempty"`
	ResponseTimeMs      *int    `json:"response_time_ms,omitempty"`
}

// ThresholdValue snapshots the configuration threshold at trigger time.
type ThresholdValue struct {
	Days           *int `json:"days,omitempty"`
	ResponseTimeMs *int `json:"response_time_ms,omitempty"`
}

// Alert is a raised incident. For a given (target, alert type) pair at most
// one unresolved row exists; repeat detections bump OccurrenceCount instead
// of creating duplicates.
type Alert struct {
	ID        int    `json:"id" gorm:"primaryKey;autoIncrement"`
	TargetID  int    `json:"target_id" gorm:"not null;index:idx_alert_target_type"`
	WebsiteID int    `json:"website_id" gorm:"not null;index"`
	AlertType string `json:"alert_type" gorm:"not null;index:idx_alert_target_type"`
	Severity  string `json:"severity" gorm:"not null;default:'warning'"`
	Title     string `json:"title" gorm:"not null"`
	Message   string `json:"message" gorm:"type:text"`

	FirstDetectedAt time.Time `json:"first_detected_at" gorm:"not null"`
	LastOccurredAt  time.Time `json:"last_occurred_at" gorm:"not null"`
	OccurrenceCount int       `json:"occurrence_count" gorm:"default:1"`

	AcknowledgedAt  *time.Time `json:"acknowledged_at"`
	AcknowledgedBy  *int       `json:"acknowledged_by"`
	AcknowledgeNote string     `json:"acknowledge_note" gorm:"type:text"`
	ResolvedAt      *time.Time `json:"resolved_at" gorm:"index"`

	TriggerValue    *TriggerValue   `json:"trigger_value" gorm:"-"`
	TriggerValueRaw string          `json:"-" gorm:"column:trigger_value;type:text"`
	Threshold       *ThresholdValue `json:"threshold_value" gorm:"-"`
	ThresholdRaw    string          `json:"-" gorm:"column:threshold_value;type:text"`

	// Notification tracking is best-effort bookkeeping; send failures never
	// roll back alert state.
	NotificationsSent     int        `json:"notifications_sent" gorm:"default:0"`
	LastNotifiedAt        *time.Time `json:"last_notified_at"`
	LastNotificationError string     `json:"last_notification_error" gorm:"type:text"`

	Suppressed    bool       `json:"suppressed" gorm:"default:false"`
	SuppressUntil *time.Time `json:"suppress_until"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for Alert
func (Alert) TableName() string {
	return "alerts"
}

// BeforeSave marshals the snapshot values to JSON before saving (GORM hook)
func (a *Alert) BeforeSave(tx *gorm.DB) error {
	if a.TriggerValue != nil {
		raw, err := json.Marshal(a.TriggerValue)
		if err != nil {
			return err
		}
		a.TriggerValueRaw = string(raw)
	}
	if a.Threshold != nil {
		raw, err := json.Marshal(a.Threshold)
		if err != nil {
			return err
		}
		a.ThresholdRaw = string(raw)
	}
	return nil
}

// AfterFind unmarshals the snapshot JSON after loading (GORM hook)
func (a *Alert) AfterFind(tx *gorm.DB) error {
	if a.TriggerValueRaw != "" {
		a.TriggerValue = &TriggerValue{}
		if err := json.Unmarshal([]byte(a.TriggerValueRaw), a.TriggerValue); err != nil {
			return err
		}
	}
	if a.ThresholdRaw != "" {
		a.Threshold = &ThresholdValue{}
		return json.Unmarshal([]byte(a.ThresholdRaw), a.Threshold)
	}
	return nil
}

// Resolved reports whether the alert has been closed.
func (a *Alert) Resolved() bool {
	return a.ResolvedAt != nil
}
