package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/plugin/dbresolver"

	"HydroMed/internal/model"
)

// AdherenceTx 持有药品行锁期间可用的操作
type AdherenceTx interface {
	// FindInWindow 查询 [from, to] 内距 at 最近的一条记录，没有时返回 nil, nil
	FindInWindow(medicationID int64, from, to, at time.Time) (*model.MedicationHistoryEntry, error)
	Create(e *model.MedicationHistoryEntry) error
	Update(e *model.MedicationHistoryEntry) error
}

// MedicationRepository 用药计划与服药记录
type MedicationRepository interface {
	Create(ctx context.Context, m *model.Medication) error
	Get(ctx context.Context, userID, id int64) (*model.Medication, error)
	List(ctx context.Context, userID int64) ([]model.Medication, error)
	// SetActive 显式写入 active 列，false 不会被零值忽略
	SetActive(ctx context.Context, userID, id int64, active bool) (*model.Medication, error)
	History(ctx context.Context, userID, medicationID int64, limit int) ([]model.MedicationHistoryEntry, error)
	HistorySince(ctx context.Context, userID int64, since time.Time) ([]model.MedicationHistoryEntry, error)
	// WithAdherenceLock 在事务中锁定药品行后执行 fn，药品不存在时返回 ErrNotFound
	WithAdherenceLock(ctx context.Context, userID, medicationID int64, fn func(tx AdherenceTx) error) error
}

type postgresMedicationRepository struct {
	db *gorm.DB
}

func NewPostgresMedicationRepository(db *gorm.DB) MedicationRepository {
	return &postgresMedicationRepository{db: db}
}

func (r *postgresMedicationRepository) Create(ctx context.Context, m *model.Medication) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *postgresMedicationRepository) Get(ctx context.Context, userID, id int64) (*model.Medication, error) {
	var m model.Medication
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&m).Error
	if err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

func (r *postgresMedicationRepository) List(ctx context.Context, userID int64) ([]model.Medication, error) {
	var ms []model.Medication
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&ms).Error
	return ms, err
}

func (r *postgresMedicationRepository) SetActive(ctx context.Context, userID, id int64, active bool) (*model.Medication, error) {
	res := r.db.WithContext(ctx).Model(&model.Medication{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("active", active)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}

	var m model.Medication
	if err := r.db.WithContext(ctx).Clauses(dbresolver.Write).
		Where("id = ? AND user_id = ?", id, userID).
		First(&m).Error; err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

func (r *postgresMedicationRepository) History(ctx context.Context, userID, medicationID int64, limit int) ([]model.MedicationHistoryEntry, error) {
	q := r.db.WithContext(ctx).Clauses(dbresolver.Read).
		Where("user_id = ? AND medication_id = ?", userID, medicationID).
		Order("time DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var es []model.MedicationHistoryEntry
	err := q.Find(&es).Error
	return es, err
}

func (r *postgresMedicationRepository) HistorySince(ctx context.Context, userID int64, since time.Time) ([]model.MedicationHistoryEntry, error) {
	var es []model.MedicationHistoryEntry
	err := r.db.WithContext(ctx).Clauses(dbresolver.Read).
		Where("user_id = ? AND time >= ?", userID, since).
		Order("time ASC").
		Find(&es).Error
	return es, err
}

func (r *postgresMedicationRepository) WithAdherenceLock(ctx context.Context, userID, medicationID int64, fn func(tx AdherenceTx) error) error {
	return r.db.WithContext(ctx).Clauses(dbresolver.Write).Transaction(func(tx *gorm.DB) error {
		var m model.Medication
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").
			Where("id = ? AND user_id = ?", medicationID, userID).
			First(&m).Error; err != nil {
			return translate(err)
		}
		return fn(&adherenceTx{tx: tx, userID: userID})
	})
}

type adherenceTx struct {
	tx     *gorm.DB
	userID int64
}

func (a *adherenceTx) FindInWindow(medicationID int64, from, to, at time.Time) (*model.MedicationHistoryEntry, error) {
	var e model.MedicationHistoryEntry
	err := a.tx.
		Where("user_id = ? AND medication_id = ? AND time BETWEEN ? AND ?", a.userID, medicationID, from, to).
		Order(clause.OrderBy{Expression: clause.Expr{SQL: "ABS(EXTRACT(EPOCH FROM (time - ?)))", Vars: []interface{}{at}}}).
		Take(&e).Error
	if err != nil {
		if err = translate(err); err == ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

func (a *adherenceTx) Create(e *model.MedicationHistoryEntry) error {
	return a.tx.Create(e).Error
}

func (a *adherenceTx) Update(e *model.MedicationHistoryEntry) error {
	return a.tx.Model(e).Updates(map[string]interface{}{
		"status": e.Status,
		"time":   e.Time,
	}).Error
}
