package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// NotificationChannel is a configured delivery endpoint (webhook, slack,
// smtp). AlertConfigurations reference channels by ID.
type NotificationChannel struct {
	ID        int                    `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID    int                    `json:"user_id" gorm:"not null;index"`
	Name      string                 `json:"name" gorm:"not null"`
	Type      string                 `json:"type" gorm:"not null"` // webhook, slack, smtp
	Config    map[string]interface{} `json:"config" gorm:"-"`
	ConfigRaw string                 `json:"-" gorm:"column:config;type:text"`
	IsDefault bool                   `json:"is_default" gorm:"default:false"`
	Active    bool                   `json:"active" gorm:"default:true;index"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// TableName specifies the table name for NotificationChannel
func (NotificationChannel) TableName() string {
	return "notification_channels"
}

// BeforeSave marshals the Config map to JSON before saving (GORM hook)
func (n *NotificationChannel) BeforeSave(tx *gorm.DB) error {
	if n.Config != nil {
		raw, err := json.Marshal(n.Config)
		if err != nil {
			return err
		}
		n.ConfigRaw = string(raw)
	}
	return nil
}

// AfterFind unmarshals the Config JSON after loading (GORM hook)
func (n *NotificationChannel) AfterFind(tx *gorm.DB) error {
	if n.ConfigRaw != "" {
		return json.Unmarshal([]byte(n.ConfigRaw), &n.Config)
	}
	return nil
}
