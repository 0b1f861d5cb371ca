package models

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// Relationship links two entities of the same owner (partner, family,
// colleague). Both endpoints follow a merge: rows pointing at a removed
// duplicate are re-pointed at the primary, and rows that would become
// self-referential are dropped.
type Relationship struct {
	ID              int       `gorm:"primary_key" json:"id"`
	UserID          int       `gorm:"index;not null" json:"user_id"`
	EntityID        int       `gorm:"index;not null;uniqueIndex:idx_relationship,priority:1" json:"entity_id"`
	RelatedEntityID int       `gorm:"index;not null;uniqueIndex:idx_relationship,priority:2" json:"related_entity_id"`
	Kind            string    `gorm:"size:50;not null;uniqueIndex:idx_relationship,priority:3" json:"kind"`
	Notes           string    `gorm:"size:255" json:"notes"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (r *Relationship) Store(tx *gorm.DB, ctx context.Context) error {
	if r.EntityID == r.RelatedEntityID {
		return errors.New("relationship cannot reference the same entity twice")
	}
	return tx.WithContext(ctx).Create(r).Error
}

func (r *Relationship) Delete(tx *gorm.DB, ctx context.Context) error {
	return tx.WithContext(ctx).Delete(r).Error
}
