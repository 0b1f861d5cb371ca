package models

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Conversation groups the communications exchanged with an entity over one
// channel. Communications reference their conversation, not the entity, so
// re-parenting a conversation carries its communications with it.
type Conversation struct {
	ID        int       `gorm:"primary_key" json:"id"`
	UserID    int       `gorm:"index;not null" json:"user_id"`
	EntityID  int       `gorm:"index;not null" json:"entity_id"`
	Channel   string    `gorm:"size:50;not null" json:"channel"`
	Subject   string    `gorm:"size:255" json:"subject"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Communications []*Communication `json:"communications"`
}

type Communication struct {
	ID             int       `gorm:"primary_key" json:"id"`
	ConversationID int       `gorm:"index;not null" json:"conversation_id"`
	Direction      string    `gorm:"type:enum('in','out');not null" json:"direction"`
	Body           string    `gorm:"type:text" json:"body"`
	SentAt         time.Time `gorm:"index;not null" json:"sent_at"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (c *Conversation) Store(tx *gorm.DB, ctx context.Context) error {
	return tx.WithContext(ctx).Create(c).Error
}

func (c *Communication) Store(tx *gorm.DB, ctx context.Context) error {
	return tx.WithContext(ctx).Create(c).Error
}
