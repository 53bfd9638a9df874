package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"HydroMed/internal/model"
	"HydroMed/internal/model/dto"
	"HydroMed/internal/repository"
	pkgerrors "HydroMed/pkg/errors"
	"HydroMed/pkg/logger"
)

// MedicationService 用户自己的用药计划
type MedicationService struct {
	repo repository.MedicationRepository
}

func NewMedicationService(repo repository.MedicationRepository) *MedicationService {
	return &MedicationService{repo: repo}
}

func (s *MedicationService) Create(ctx context.Context, userID int64, req dto.CreateMedicationRequest) (*model.Medication, error) {
	m := &model.Medication{
		UserID: userID,
		Name:   req.Name,
		Dosage: req.Dosage,
		Times:  req.Times,
		Active: true,
	}
	if err := s.repo.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to create medication: %w", err)
	}
	return m, nil
}

func (s *MedicationService) List(ctx context.Context, userID int64) ([]model.Medication, error) {
	ms, err := s.repo.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list medications: %w", err)
	}
	if ms == nil {
		ms = []model.Medication{}
	}
	return ms, nil
}

func (s *MedicationService) Get(ctx context.Context, userID, id int64) (*model.Medication, error) {
	m, err := s.repo.Get(ctx, userID, id)
	if err != nil {
		return nil, notFound(err, pkgerrors.MedicationNotFound)
	}
	return m, nil
}

// SetActive 停用后不再计入周报的服药槽位，设备端同步后也不再提醒
func (s *MedicationService) SetActive(ctx context.Context, userID, id int64, active bool) (*model.Medication, error) {
	m, err := s.repo.SetActive(ctx, userID, id, active)
	if err != nil {
		return nil, notFound(err, pkgerrors.MedicationNotFound)
	}
	logger.Logger.Info("Medication active state changed",
		zap.Int64("user_id", userID),
		zap.Int64("medication_id", id),
		zap.Bool("active", active),
	)
	return m, nil
}

// History 单个药品的服药记录，最新在前
func (s *MedicationService) History(ctx context.Context, userID, medicationID int64, limit int) ([]model.MedicationHistoryEntry, error) {
	if _, err := s.repo.Get(ctx, userID, medicationID); err != nil {
		return nil, notFound(err, pkgerrors.MedicationNotFound)
	}
	if limit <= 0 {
		limit = 100
	}
	es, err := s.repo.History(ctx, userID, medicationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load medication history: %w", err)
	}
	if es == nil {
		es = []model.MedicationHistoryEntry{}
	}
	return es, nil
}
