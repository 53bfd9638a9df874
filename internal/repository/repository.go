package repository

import (
	"errors"

	"gorm.io/gorm"
)

var (
	// ErrNotFound 记录不存在或不属于当前用户
	ErrNotFound = errors.New("record not found")
	// ErrStaleStatus 条件更新时记录状态已被其他请求改变
	ErrStaleStatus = errors.New("record status changed")
)

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
