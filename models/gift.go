package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Gift struct {
	ID        int             `gorm:"primary_key" json:"id"`
	UserID    int             `gorm:"index;not null" json:"user_id"`
	EntityID  int             `gorm:"index;not null" json:"entity_id"`
	Name      string          `gorm:"size:255;not null" json:"name"`
	Occasion  string          `gorm:"size:100" json:"occasion"`
	Amount    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	Status    string          `gorm:"type:enum('idea','offered','received');not null;default:'idea'" json:"status"`
	GivenAt   *time.Time      `json:"given_at"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (g *Gift) Store(tx *gorm.DB, ctx context.Context) error {
	return tx.WithContext(ctx).Create(g).Error
}

func (g *Gift) Delete(tx *gorm.DB, ctx context.Context) error {
	return tx.WithContext(ctx).Delete(g).Error
}
