package dto

import (
	"time"

	"HydroMed/internal/model"
)

// CreateNotificationRequest 创建提醒记录
type CreateNotificationRequest struct {
	ScheduledTime time.Time                 `json:"scheduled_time" validate:"required"`
	Payload       model.NotificationPayload `json:"payload"`
	Type          string                    `json:"type" validate:"required,oneof=hydration medication"`
	Title         string                    `json:"title" validate:"required,max=128"`
	Body          string                    `json:"body" validate:"max=1024"`
}

// UpdateNotificationRequest PUT 更新，两个字段都可选
type UpdateNotificationRequest struct {
	Status        *string    `json:"status,omitempty" validate:"omitempty,oneof=scheduled missed completed"`
	ScheduledTime *time.Time `json:"scheduled_time,omitempty"`
}

// SnoozeRequest 稍后提醒
type SnoozeRequest struct {
	Minutes int `json:"minutes" validate:"gt=0,lte=1440"`
}

// SweepRequest 手动触发漏提醒扫描，ThresholdMinutes 为 0 时使用默认阈值
type SweepRequest struct {
	ThresholdMinutes int `json:"threshold_minutes" validate:"gte=0,lte=1440"`
}

// SweepResponse 扫描结果
type SweepResponse struct {
	MissedIDs []int64 `json:"missed_ids"`
	Count     int     `json:"count"`
}

// ListNotificationsQuery 列表过滤
type ListNotificationsQuery struct {
	Status string `query:"status" validate:"omitempty,oneof=scheduled missed completed"`
	Type   string `query:"type" validate:"omitempty,oneof=hydration medication"`
	Limit  int    `query:"limit" validate:"gte=0,lte=500"`
}

// CompleteResponse 完成提醒，Next 为饮水提醒链上新建的下一条
type CompleteResponse struct {
	Notification *model.Notification `json:"notification"`
	Next         *model.Notification `json:"next,omitempty"`
}
