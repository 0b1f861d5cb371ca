package models

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Attachment references a stored file by URL; the object storage adapter
// itself lives outside this core.
type Attachment struct {
	ID        int       `gorm:"primary_key" json:"id"`
	UserID    int       `gorm:"index;not null" json:"user_id"`
	EntityID  int       `gorm:"index;not null" json:"entity_id"`
	FileName  string    `gorm:"size:255;not null" json:"file_name"`
	FileUrl   string    `gorm:"size:500;not null" json:"file_url"`
	MimeType  string    `gorm:"size:100" json:"mime_type"`
	SizeBytes int64     `gorm:"default:0" json:"size_bytes"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (a *Attachment) Store(tx *gorm.DB, ctx context.Context) error {
	return tx.WithContext(ctx).Create(a).Error
}

func (a *Attachment) Delete(tx *gorm.DB, ctx context.Context) error {
	return tx.WithContext(ctx).Delete(a).Error
}
