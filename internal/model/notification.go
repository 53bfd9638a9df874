package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// NotificationType 通知类型
type NotificationType string

const (
	NotificationTypeHydration  NotificationType = "hydration"
	NotificationTypeMedication NotificationType = "medication"
)

// NotificationStatus 通知状态机
type NotificationStatus string

const (
	NotificationStatusScheduled NotificationStatus = "scheduled"
	NotificationStatusMissed    NotificationStatus = "missed"
	NotificationStatusCompleted NotificationStatus = "completed"
)

// Notification 一次提醒的持久化记录，除用户主动删除外不做物理删除
type Notification struct {
	BaseModel
	UserID                int64               `gorm:"not null;index:idx_notifications_user_status" json:"user_id"`
	Type                  NotificationType    `gorm:"type:varchar(16);not null" json:"type"`
	Title                 string              `gorm:"type:varchar(128);not null" json:"title"`
	Body                  string              `gorm:"type:text" json:"body"`
	ScheduledTime         time.Time           `gorm:"type:timestamptz;not null;index:idx_notifications_sweep" json:"scheduled_time"`
	OriginalScheduledTime time.Time           `gorm:"type:timestamptz;not null" json:"original_scheduled_time"`
	Status                NotificationStatus  `gorm:"type:varchar(16);not null;default:'scheduled';index:idx_notifications_user_status;index:idx_notifications_sweep" json:"status"`
	Payload               NotificationPayload `gorm:"type:jsonb;not null" json:"payload"`
	MedicationID          *int64              `gorm:"index" json:"medication_id,omitempty"`
	CompletedAt           *time.Time          `gorm:"type:timestamptz" json:"completed_at,omitempty"`
	MissedAt              *time.Time          `gorm:"type:timestamptz" json:"missed_at,omitempty"`
	SnoozeCount           int                 `gorm:"not null;default:0" json:"snooze_count"`
	LastSnoozedAt         *time.Time          `gorm:"type:timestamptz" json:"last_snoozed_at,omitempty"`
}

// TableName 指定表名
func (Notification) TableName() string {
	return "notifications"
}

// HydrationPayload 饮水提醒附带信息
type HydrationPayload struct {
	AmountML        int `json:"amount_ml,omitempty"`
	IntervalMinutes int `json:"interval_minutes,omitempty"`
}

// MedicationPayload 用药提醒附带信息
type MedicationPayload struct {
	MedicationID int64  `json:"medication_id"`
	Name         string `json:"name,omitempty"`
	Dosage       string `json:"dosage,omitempty"`
}

// NotificationPayload 按通知类型区分的载荷，只应填充与 Type 对应的一项
type NotificationPayload struct {
	Hydration  *HydrationPayload  `json:"hydration,omitempty"`
	Medication *MedicationPayload `json:"medication,omitempty"`
}

// MatchesType 检查载荷与通知类型是否一致，空载荷视为一致
func (p NotificationPayload) MatchesType(t NotificationType) bool {
	switch t {
	case NotificationTypeHydration:
		return p.Medication == nil
	case NotificationTypeMedication:
		return p.Hydration == nil && p.Medication != nil
	default:
		return false
	}
}

func (p NotificationPayload) Value() (driver.Value, error) {
	return json.Marshal(p)
}

func (p *NotificationPayload) Scan(value interface{}) error {
	if value == nil {
		*p = NotificationPayload{}
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.New("failed to unmarshal notification payload")
	}
	return json.Unmarshal(data, p)
}
