package models

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Reminder struct {
	ID          int        `gorm:"primary_key" json:"id"`
	UserID      int        `gorm:"index;not null" json:"user_id"`
	EntityID    int        `gorm:"index;not null" json:"entity_id"`
	Title       string     `gorm:"size:255;not null" json:"title"`
	DueAt       time.Time  `gorm:"index;not null" json:"due_at"`
	RecurEvery  string     `gorm:"size:20" json:"recur_every"`
	CompletedAt *time.Time `json:"completed_at"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (r *Reminder) Store(tx *gorm.DB, ctx context.Context) error {
	return tx.WithContext(ctx).Create(r).Error
}

func (r *Reminder) Delete(tx *gorm.DB, ctx context.Context) error {
	return tx.WithContext(ctx).Delete(r).Error
}
