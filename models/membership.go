package models

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Tag struct {
	ID        int       `gorm:"primary_key" json:"id"`
	UserID    int       `gorm:"index;not null;uniqueIndex:idx_tag_user_name,priority:1" json:"user_id"`
	Name      string    `gorm:"size:100;not null;uniqueIndex:idx_tag_user_name,priority:2" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TagMembership attaches one tag to one entity. Unioned, never duplicated,
// when entities merge.
type TagMembership struct {
	ID        int       `gorm:"primary_key" json:"id"`
	UserID    int       `gorm:"index;not null" json:"user_id"`
	EntityID  int       `gorm:"index;not null;uniqueIndex:idx_tag_membership,priority:1" json:"entity_id"`
	TagID     int       `gorm:"not null;uniqueIndex:idx_tag_membership,priority:2" json:"tag_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type Group struct {
	ID        int       `gorm:"primary_key" json:"id"`
	UserID    int       `gorm:"index;not null;uniqueIndex:idx_group_user_name,priority:1" json:"user_id"`
	Name      string    `gorm:"size:100;not null;uniqueIndex:idx_group_user_name,priority:2" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type GroupMembership struct {
	ID        int       `gorm:"primary_key" json:"id"`
	UserID    int       `gorm:"index;not null" json:"user_id"`
	EntityID  int       `gorm:"index;not null;uniqueIndex:idx_group_membership,priority:1" json:"entity_id"`
	GroupID   int       `gorm:"not null;uniqueIndex:idx_group_membership,priority:2" json:"group_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (m *TagMembership) Store(tx *gorm.DB, ctx context.Context) error {
	return tx.WithContext(ctx).Create(m).Error
}

func (m *GroupMembership) Store(tx *gorm.DB, ctx context.Context) error {
	return tx.WithContext(ctx).Create(m).Error
}
