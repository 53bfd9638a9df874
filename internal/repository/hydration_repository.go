package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/plugin/dbresolver"

	"HydroMed/internal/model"
)

// HydrationRepository 饮水记录与每用户设置
type HydrationRepository interface {
	AddEntry(ctx context.Context, e *model.HydrationEntry) error
	// EntriesBetween 返回 [from, to) 内的记录，按时间升序
	EntriesBetween(ctx context.Context, userID int64, from, to time.Time) ([]model.HydrationEntry, error)
	GetSettings(ctx context.Context, userID int64) (*model.HydrationSettings, error)
	SaveSettings(ctx context.Context, s *model.HydrationSettings) error
}

type postgresHydrationRepository struct {
	db *gorm.DB
}

func NewPostgresHydrationRepository(db *gorm.DB) HydrationRepository {
	return &postgresHydrationRepository{db: db}
}

func (r *postgresHydrationRepository) AddEntry(ctx context.Context, e *model.HydrationEntry) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *postgresHydrationRepository) EntriesBetween(ctx context.Context, userID int64, from, to time.Time) ([]model.HydrationEntry, error) {
	var es []model.HydrationEntry
	err := r.db.WithContext(ctx).Clauses(dbresolver.Read).
		Where("user_id = ? AND timestamp >= ? AND timestamp < ?", userID, from, to).
		Order("timestamp ASC").
		Find(&es).Error
	return es, err
}

func (r *postgresHydrationRepository) GetSettings(ctx context.Context, userID int64) (*model.HydrationSettings, error) {
	var s model.HydrationSettings
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&s).Error; err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

// SaveSettings 按 user_id upsert
func (r *postgresHydrationRepository) SaveSettings(ctx context.Context, s *model.HydrationSettings) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"goal_ml", "weight", "weight_unit", "age", "climate",
			"exercise_frequency", "reminder_interval_minutes", "updated_at",
		}),
	}).Create(s).Error
}
