package model

import (
	"time"

	"HydroMed/internal/goal"
)

// HydrationSource 饮水记录来源
type HydrationSource string

const (
	HydrationSourceManual   HydrationSource = "manual"
	HydrationSourceQuick    HydrationSource = "quick"
	HydrationSourceCustom   HydrationSource = "custom"
	HydrationSourceReminder HydrationSource = "reminder"
)

// HydrationEntry 单次饮水记录，只追加
type HydrationEntry struct {
	BaseModel
	UserID    int64           `gorm:"not null;index:idx_hydration_user_time" json:"user_id"`
	AmountML  int             `gorm:"not null" json:"amount_ml"`
	Timestamp time.Time       `gorm:"type:timestamptz;not null;index:idx_hydration_user_time" json:"timestamp"`
	Source    HydrationSource `gorm:"type:varchar(16);not null;default:'manual'" json:"source"`
}

// TableName 指定表名
func (HydrationEntry) TableName() string {
	return "hydration_entries"
}

// HydrationSettings 用户饮水目标与画像，每个用户一行
type HydrationSettings struct {
	BaseModel
	UserID                  int64                  `gorm:"not null;uniqueIndex" json:"user_id"`
	GoalML                  int                    `gorm:"not null" json:"goal_ml"`
	Weight                  *float64               `json:"weight,omitempty"`
	WeightUnit              goal.WeightUnit        `gorm:"type:varchar(8)" json:"weight_unit,omitempty"`
	Age                     int                    `json:"age,omitempty"`
	Climate                 goal.Climate           `gorm:"type:varchar(16)" json:"climate,omitempty"`
	ExerciseFrequency       goal.ExerciseFrequency `gorm:"type:varchar(16)" json:"exercise_frequency,omitempty"`
	ReminderIntervalMinutes int                    `gorm:"not null;default:60" json:"reminder_interval_minutes"`
}

// TableName 指定表名
func (HydrationSettings) TableName() string {
	return "hydration_settings"
}

// Profile 转换为目标计算所需的画像
func (s HydrationSettings) Profile() goal.Profile {
	return goal.Profile{
		Weight:            s.Weight,
		WeightUnit:        s.WeightUnit,
		Age:               s.Age,
		Climate:           s.Climate,
		ExerciseFrequency: s.ExerciseFrequency,
	}
}
