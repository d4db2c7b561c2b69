// Package repo holds what the gorm repositories share.
package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// Base carries the connection, or the open transaction, a repository writes through.
type Base struct {
	db *gorm.DB
}

func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB scopes the connection to ctx.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// Bound reports the Base to use inside tx; a nil tx keeps the current one.
func (b Base) Bound(tx *gorm.DB) Base {
	if tx == nil {
		return b
	}
	return Base{db: tx}
}

// FindOne returns the first row matching the condition, or nil when no row does.
func FindOne[T any](db *gorm.DB, condition any, args ...any) (*T, error) {
	var row T
	err := db.Where(condition, args...).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}
