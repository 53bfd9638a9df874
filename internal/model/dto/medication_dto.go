package dto

import (
	"time"

	"HydroMed/internal/model"
)

// CreateMedicationRequest 新增用药计划
type CreateMedicationRequest struct {
	Name   string   `json:"name" validate:"required,max=128"`
	Dosage string   `json:"dosage" validate:"max=64"`
	Times  []string `json:"times" validate:"required,min=1,max=12,dive,clock"`
}

// UpdateMedicationRequest 停用或恢复用药计划
type UpdateMedicationRequest struct {
	Active *bool `json:"active" validate:"required"`
}

// LogAdherenceRequest 记录一次服药或跳过，Time 缺省为当前时间
type LogAdherenceRequest struct {
	Time   *time.Time `json:"time,omitempty"`
	Status string     `json:"status" validate:"required,oneof=completed skipped"`
}

// AdherenceResult 依从性写入结果
type AdherenceResult struct {
	Entry   *model.MedicationHistoryEntry `json:"entry"`
	Outcome string                        `json:"outcome"` // created, upgraded
}
