package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/plugin/dbresolver"

	"HydroMed/internal/model"
)

// NotificationFilter 列表过滤，零值字段不参与过滤
type NotificationFilter struct {
	UserID int64
	Status model.NotificationStatus
	Type   model.NotificationType
	Limit  int
}

// ChainFunc 根据刚完成的记录生成下一条提醒，返回 nil 表示不续链
type ChainFunc func(completed model.Notification) *model.Notification

// NotificationRepository 通知记录存储
type NotificationRepository interface {
	Create(ctx context.Context, n *model.Notification) error
	Get(ctx context.Context, userID, id int64) (*model.Notification, error)
	// UpdateIfStatus 仅当记录仍处于 from 状态时更新，否则返回 ErrStaleStatus
	UpdateIfStatus(ctx context.Context, userID, id int64, from model.NotificationStatus, fields map[string]interface{}) (*model.Notification, error)
	Delete(ctx context.Context, userID, id int64) error
	List(ctx context.Context, f NotificationFilter) ([]model.Notification, error)
	// ListSince 按 original_scheduled_time 查询，供分析使用
	ListSince(ctx context.Context, userID int64, t model.NotificationType, since time.Time) ([]model.Notification, error)
	// Complete 在同一事务里完成记录并插入续链记录；已完成时 changed 为 false 且不续链
	Complete(ctx context.Context, userID, id int64, at time.Time, chain ChainFunc) (record, next *model.Notification, changed bool, err error)
	// MarkMissedBefore 将 scheduled_time < cutoff 的 scheduled 记录置为 missed，userID 为 0 时扫描全部用户
	MarkMissedBefore(ctx context.Context, userID int64, cutoff, now time.Time) ([]model.Notification, error)
}

type postgresNotificationRepository struct {
	db *gorm.DB
}

func NewPostgresNotificationRepository(db *gorm.DB) NotificationRepository {
	return &postgresNotificationRepository{db: db}
}

func (r *postgresNotificationRepository) Create(ctx context.Context, n *model.Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

func (r *postgresNotificationRepository) Get(ctx context.Context, userID, id int64) (*model.Notification, error) {
	var n model.Notification
	err := r.db.WithContext(ctx).Clauses(dbresolver.Write).
		Where("id = ? AND user_id = ?", id, userID).
		First(&n).Error
	if err != nil {
		return nil, translate(err)
	}
	return &n, nil
}

func (r *postgresNotificationRepository) UpdateIfStatus(ctx context.Context, userID, id int64, from model.NotificationStatus, fields map[string]interface{}) (*model.Notification, error) {
	var rows []model.Notification
	err := r.db.WithContext(ctx).Model(&rows).Clauses(clause.Returning{}).
		Where("id = ? AND user_id = ? AND status = ?", id, userID, from).
		Updates(fields).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrStaleStatus
	}
	return &rows[0], nil
}

func (r *postgresNotificationRepository) Delete(ctx context.Context, userID, id int64) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&model.Notification{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *postgresNotificationRepository) List(ctx context.Context, f NotificationFilter) ([]model.Notification, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", f.UserID)
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var ns []model.Notification
	err := q.Order("scheduled_time DESC").Find(&ns).Error
	return ns, err
}

func (r *postgresNotificationRepository) ListSince(ctx context.Context, userID int64, t model.NotificationType, since time.Time) ([]model.Notification, error) {
	var ns []model.Notification
	err := r.db.WithContext(ctx).Clauses(dbresolver.Read).
		Where("user_id = ? AND type = ? AND original_scheduled_time >= ?", userID, t, since).
		Order("original_scheduled_time ASC").
		Find(&ns).Error
	return ns, err
}

func (r *postgresNotificationRepository) Complete(ctx context.Context, userID, id int64, at time.Time, chain ChainFunc) (record, next *model.Notification, changed bool, err error) {
	err = r.db.WithContext(ctx).Clauses(dbresolver.Write).Transaction(func(tx *gorm.DB) error {
		var n model.Notification
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND user_id = ?", id, userID).
			First(&n).Error; err != nil {
			return translate(err)
		}
		record = &n

		if n.Status == model.NotificationStatusCompleted {
			return nil
		}

		n.Status = model.NotificationStatusCompleted
		n.CompletedAt = &at
		if err := tx.Save(&n).Error; err != nil {
			return err
		}
		changed = true

		if chain == nil {
			return nil
		}
		if next = chain(n); next != nil {
			return tx.Create(next).Error
		}
		return nil
	})
	if err != nil {
		return nil, nil, false, err
	}
	return record, next, changed, nil
}

func (r *postgresNotificationRepository) MarkMissedBefore(ctx context.Context, userID int64, cutoff, now time.Time) ([]model.Notification, error) {
	var rows []model.Notification
	q := r.db.WithContext(ctx).Model(&rows).Clauses(clause.Returning{}).
		Where("status = ? AND scheduled_time < ?", model.NotificationStatusScheduled, cutoff)
	if userID != 0 {
		q = q.Where("user_id = ?", userID)
	}

	err := q.Updates(map[string]interface{}{
		"status":     model.NotificationStatusMissed,
		"missed_at":  now,
		"updated_at": now,
	}).Error
	return rows, err
}
