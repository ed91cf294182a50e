package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// AlertConfiguration is a user-defined alerting rule. A nil WebsiteID makes
// the rule global; otherwise it applies to one website's targets only.
type AlertConfiguration struct {
	ID        int    `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID    int    `json:"user_id" gorm:"not null;index"`
	WebsiteID *int   `json:"website_id" gorm:"index"`
	AlertType string `json:"alert_type" gorm:"not null;index"`
	Enabled   bool   `json:"enabled" gorm:"default:true;index"`
	Severity  string `json:"severity" gorm:"default:'warning'"`

	// ThresholdDays applies to expiry-type alerts, ThresholdResponseTimeMs to
	// response-time alerts; the other field is ignored per type.
	ThresholdDays           int `json:"threshold_days" gorm:"default:0"`
	ThresholdResponseTimeMs int `json:"threshold_response_time_ms" gorm:"default:0"`

	// ChannelIDs references NotificationChannel rows.
	ChannelIDs  []int  `json:"channel_ids" gorm:"-"`
	ChannelsRaw string `json:"-" gorm:"column:channel_ids;type:text"`

	// LastTriggeredAt drives the notification cooldown. Written by the alert
	// engine only.
	LastTriggeredAt *time.Time `json:"last_triggered_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for AlertConfiguration
func (AlertConfiguration) TableName() string {
	return "alert_configurations"
}

// BeforeSave marshals the channel set to JSON before saving (GORM hook)
func (c *AlertConfiguration) BeforeSave(tx *gorm.DB) error {
	if c.ChannelIDs != nil {
		raw, err := json.Marshal(c.ChannelIDs)
		if err != nil {
			return err
		}
		c.ChannelsRaw = string(raw)
	}
	return nil
}

// AfterFind unmarshals the channel JSON after loading (GORM hook)
func (c *AlertConfiguration) AfterFind(tx *gorm.DB) error {
	if c.ChannelsRaw != "" {
		return json.Unmarshal([]byte(c.ChannelsRaw), &c.ChannelIDs)
	}
	return nil
}

// AppliesTo reports whether this rule covers the given website.
func (c *AlertConfiguration) AppliesTo(websiteID int) bool {
	return c.WebsiteID == nil || *c.WebsiteID == websiteID
}
