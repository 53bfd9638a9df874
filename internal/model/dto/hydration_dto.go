package dto

import (
	"time"

	"HydroMed/internal/goal"
)

// LogHydrationRequest 记录饮水
type LogHydrationRequest struct {
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Source    string     `json:"source" validate:"omitempty,oneof=manual quick custom reminder"`
	AmountML  int        `json:"amount_ml" validate:"gt=0,lte=5000"`
}

// HydrationEntryResponse 饮水记录响应
type HydrationEntryResponse struct {
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	AmountML  int       `json:"amount_ml"`
}

// SetGoalRequest 设置每日目标
type SetGoalRequest struct {
	GoalML int `json:"goal_ml" validate:"gte=1000,lte=5000"`
}

// GoalResponse 每日目标
type GoalResponse struct {
	Profile     *goal.Profile `json:"profile,omitempty"`
	GoalML      int           `json:"goal_ml"`
	IdealGoalML int           `json:"ideal_goal_ml,omitempty"`
}

// UpdateProfileRequest 更新画像，ApplyGoal 为 true 时同时把理想目标设为当前目标
type UpdateProfileRequest struct {
	Weight            *float64 `json:"weight,omitempty" validate:"omitempty,gt=0,lte=700"`
	WeightUnit        string   `json:"weight_unit" validate:"omitempty,oneof=kg lbs"`
	Climate           string   `json:"climate" validate:"omitempty,oneof=hot temperate cold"`
	ExerciseFrequency string   `json:"exercise_frequency" validate:"omitempty,oneof=rarely sometimes regularly often"`
	Age               int      `json:"age" validate:"gte=0,lte=130"`
	ApplyGoal         bool     `json:"apply_goal"`
}

// HistoryQuery 饮水历史查询
type HistoryQuery struct {
	Range string `query:"range" json:"range" validate:"omitempty,oneof=daily weekly monthly"`
	Start string `query:"start" json:"start"`
	End   string `query:"end" json:"end"`
}
