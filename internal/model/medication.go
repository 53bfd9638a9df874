package model

import "time"

// Medication 用户自己的用药计划，Times 为每日服药时间 HH:MM
type Medication struct {
	BaseModel
	UserID int64    `gorm:"not null;index" json:"user_id"`
	Name   string   `gorm:"type:varchar(128);not null" json:"name"`
	Dosage string   `gorm:"type:varchar(64)" json:"dosage"`
	Times  []string `gorm:"type:jsonb;serializer:json;not null" json:"times"`
	Active bool     `gorm:"not null;default:true" json:"active"`
}

// TableName 指定表名
func (Medication) TableName() string {
	return "medications"
}

// AdherenceStatus 服药记录状态
type AdherenceStatus string

const (
	AdherenceStatusCompleted AdherenceStatus = "completed"
	AdherenceStatusSkipped   AdherenceStatus = "skipped"
)

// MedicationHistoryEntry 服药记录，同一药品在 ±2h 窗口内至多一条
type MedicationHistoryEntry struct {
	BaseModel
	UserID       int64           `gorm:"not null;index:idx_medication_history_user_time" json:"user_id"`
	MedicationID int64           `gorm:"not null;index:idx_medication_history_med_time" json:"medication_id"`
	Status       AdherenceStatus `gorm:"type:varchar(16);not null" json:"status"`
	Time         time.Time       `gorm:"type:timestamptz;not null;index:idx_medication_history_med_time;index:idx_medication_history_user_time" json:"time"`
}

// TableName 指定表名
func (MedicationHistoryEntry) TableName() string {
	return "medication_history"
}
