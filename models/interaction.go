package models

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Interaction is one logged touchpoint with an entity (call, meetup, note).
type Interaction struct {
	ID          int       `gorm:"primary_key" json:"id"`
	UserID      int       `gorm:"index;not null" json:"user_id"`
	EntityID    int       `gorm:"index;not null" json:"entity_id"`
	Kind        string    `gorm:"size:50;not null" json:"kind"`
	Description string    `gorm:"type:text" json:"description"`
	HappenedAt  time.Time `gorm:"index;not null" json:"happened_at"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (i *Interaction) Store(tx *gorm.DB, ctx context.Context) error {
	return tx.WithContext(ctx).Create(i).Error
}

func (i *Interaction) Delete(tx *gorm.DB, ctx context.Context) error {
	return tx.WithContext(ctx).Delete(i).Error
}
