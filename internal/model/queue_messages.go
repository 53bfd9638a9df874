package model

import "time"

// 事件类型，同时作为 events.topic 的 routing key
const (
	EventNotificationMissed = "notification.missed"
	EventAdherenceLogged    = "adherence.logged"
)

// NotificationMissedMessage 扫描将提醒标记为 missed 后投递
type NotificationMissedMessage struct {
	MessageID       string    `json:"message_id"` // 消息唯一ID，用于幂等性检查
	UserID          int64     `json:"user_id"`
	NotificationIDs []int64   `json:"notification_ids"`
	MissedAt        time.Time `json:"missed_at"`
}

// AdherenceLoggedMessage 服药记录写入或升级后投递
type AdherenceLoggedMessage struct {
	MessageID    string          `json:"message_id"`
	UserID       int64           `json:"user_id"`
	MedicationID int64           `json:"medication_id"`
	EntryID      int64           `json:"entry_id"`
	Status       AdherenceStatus `json:"status"`
	Outcome      string          `json:"outcome"` // created, upgraded
	OccurredAt   time.Time       `json:"occurred_at"`
}
