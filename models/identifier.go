package models

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/kinship_backend/secure"
	"gorm.io/gorm"
)

// Identifier is an encrypted, typed contact value attached to an entity.
// Equality search runs on the blind-index token; the plaintext is never
// stored and never decrypted during matching.
type Identifier struct {
	ID             int            `gorm:"primary_key" json:"id"`
	UserID         int            `gorm:"index;not null" json:"user_id"`
	EntityID       int            `gorm:"index;not null;uniqueIndex:idx_entity_type_token,priority:1" json:"entity_id"`
	IdentifierType IdentifierType `gorm:"type:enum('email','phone','external_id','url');not null;uniqueIndex:idx_entity_type_token,priority:2" json:"identifier_type"`
	ValueEncrypted []byte         `gorm:"type:blob;not null" json:"-"`
	BlindIndex     string         `gorm:"size:64;index;not null;uniqueIndex:idx_entity_type_token,priority:3" json:"-"`
	Source         string         `gorm:"size:50" json:"source"`
	IsPrimary      *bool          `gorm:"not null;default:false" json:"is_primary"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewIdentifier struct {
	IdentifierType IdentifierType `json:"identifier_type" binding:"required"`
	Value          string         `json:"value" binding:"required"`
	Source         string         `json:"source"`
	IsPrimary      bool           `json:"is_primary"`

	vault secure.Vault
}

func (input *NewIdentifier) validate() error {
	if err := input.IdentifierType.Validate(); err != nil {
		return err
	}
	if input.Value == "" {
		return errors.New("identifier value is required")
	}
	if input.vault == nil {
		return errors.New("identifier vault is required")
	}
	return nil
}

// WithVault attaches the encryption capability used when mapping the input
// to a row. Kept off the JSON surface so payloads never carry key material.
func (input *NewIdentifier) WithVault(v secure.Vault) *NewIdentifier {
	input.vault = v
	return input
}

func (input *NewIdentifier) MapInput(userId int, entityId int) (*Identifier, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	encrypted, err := input.vault.Encrypt(input.Value)
	if err != nil {
		return nil, err
	}
	isPrimary := input.IsPrimary
	return &Identifier{
		UserID:         userId,
		EntityID:       entityId,
		IdentifierType: input.IdentifierType,
		ValueEncrypted: encrypted,
		BlindIndex:     input.vault.BlindIndex(input.Value, input.IdentifierType.BlindIndexContext()),
		Source:         input.Source,
		IsPrimary:      &isPrimary,
	}, nil
}

func (i *Identifier) Store(tx *gorm.DB, ctx context.Context) error {
	// At most one identifier per (entity, type) may be flagged primary.
	if i.IsPrimary != nil && *i.IsPrimary {
		err := tx.WithContext(ctx).
			Model(&Identifier{}).
			Where("entity_id = ? AND identifier_type = ?", i.EntityID, i.IdentifierType).
			Update("is_primary", false).Error
		if err != nil {
			return err
		}
	}
	return tx.WithContext(ctx).Create(i).Error
}

func (i *Identifier) Delete(tx *gorm.DB, ctx context.Context) error {
	return tx.WithContext(ctx).Delete(i).Error
}

// TokenGroup is one (identifier_type, blind_index) value shared by more than
// one entity of the same owner. The matcher's bucketing query returns these
// instead of scanning entity pairs.
type TokenGroup struct {
	IdentifierType IdentifierType
	BlindIndex     string
	EntityIds      []int
}

// SharedTokenGroups finds identifier tokens attached to two or more distinct
// entities of the given owner.
func SharedTokenGroups(ctx context.Context, tx *gorm.DB, userId int) ([]*TokenGroup, error) {
	var rows []struct {
		IdentifierType IdentifierType
		BlindIndex     string
		EntityID       int
	}
	err := tx.WithContext(ctx).
		Model(&Identifier{}).
		Select("identifier_type, blind_index, entity_id").
		Where("user_id = ?", userId).
		Where("(identifier_type, blind_index) IN (?)",
			tx.Model(&Identifier{}).
				Select("identifier_type, blind_index").
				Where("user_id = ?", userId).
				Group("identifier_type, blind_index").
				Having("COUNT(DISTINCT entity_id) > 1"),
		).
		Order("identifier_type, blind_index, entity_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	var groups []*TokenGroup
	var current *TokenGroup
	for _, row := range rows {
		if current == nil || current.IdentifierType != row.IdentifierType || current.BlindIndex != row.BlindIndex {
			current = &TokenGroup{IdentifierType: row.IdentifierType, BlindIndex: row.BlindIndex}
			groups = append(groups, current)
		}
		current.EntityIds = append(current.EntityIds, row.EntityID)
	}
	return groups, nil
}
