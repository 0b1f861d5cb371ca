package models

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/kinship_backend/config"
	"github.com/mmdatafocus/kinship_backend/utils"
	"gorm.io/gorm"
)

// Entity is a stored person or organization owned by exactly one user.
// Every dependent record references exactly one entity at any time; the
// owning user never changes. Only the merge executor may delete entity rows.
type Entity struct {
	ID          int        `gorm:"primary_key" json:"id"`
	UserID      int        `gorm:"index;not null" json:"user_id" binding:"required"`
	EntityType  EntityType `gorm:"type:enum('P','O');not null;default:'P'" json:"entity_type"`
	DisplayName string     `gorm:"size:255;not null" json:"display_name" binding:"required"`
	Nickname    string     `gorm:"size:100" json:"nickname"`
	Company     string     `gorm:"size:255" json:"company"`
	JobTitle    string     `gorm:"size:255" json:"job_title"`
	Notes       string     `gorm:"type:text" json:"notes"`
	Birthday    *time.Time `json:"birthday"`
	IsArchived  *bool      `gorm:"not null;default:false" json:"is_archived"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	Identifiers      []*Identifier      `json:"identifiers"`
	Relationships    []*Relationship    `json:"relationships"`
	Interactions     []*Interaction     `json:"interactions"`
	Conversations    []*Conversation    `json:"conversations"`
	Reminders        []*Reminder        `json:"reminders"`
	Gifts            []*Gift            `json:"gifts"`
	Attachments      []*Attachment      `json:"attachments"`
	TagMemberships   []*TagMembership   `json:"tag_memberships"`
	GroupMemberships []*GroupMembership `json:"group_memberships"`
}

type NewEntity struct {
	EntityType  EntityType       `json:"entity_type"`
	DisplayName string           `json:"display_name" binding:"required"`
	Nickname    string           `json:"nickname"`
	Company     string           `json:"company"`
	JobTitle    string           `json:"job_title"`
	Notes       string           `json:"notes"`
	Birthday    *time.Time       `json:"birthday"`
	Identifiers []*NewIdentifier `json:"identifiers"`
}

func (input *NewEntity) validate(ctx context.Context, userId int, id int) error {
	if input.DisplayName == "" {
		return errors.New("display name is required")
	}
	if input.EntityType != "" {
		if err := input.EntityType.Validate(); err != nil {
			return err
		}
	}
	if id > 0 {
		if err := utils.ValidateResourceId[Entity](ctx, userId, id); err != nil {
			return err
		}
	}
	for _, ident := range input.Identifiers {
		if err := ident.validate(); err != nil {
			return err
		}
	}
	return nil
}

func CreateEntity(ctx context.Context, input *NewEntity) (*Entity, error) {
	db := config.GetDB()

	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId <= 0 {
		return nil, errors.New("user id is required")
	}

	if err := input.validate(ctx, userId, 0); err != nil {
		return nil, err
	}

	entityType := input.EntityType
	if entityType == "" {
		entityType = EntityTypePerson
	}

	entity := Entity{
		UserID:      userId,
		EntityType:  entityType,
		DisplayName: input.DisplayName,
		Nickname:    input.Nickname,
		Company:     input.Company,
		JobTitle:    input.JobTitle,
		Notes:       input.Notes,
		Birthday:    input.Birthday,
		IsArchived:  utils.NewFalse(),
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Create(&entity).Error; err != nil {
			return err
		}
		for _, ident := range input.Identifiers {
			row, err := ident.MapInput(userId, entity.ID)
			if err != nil {
				return err
			}
			if err := row.Store(tx, ctx); err != nil {
				return err
			}
			entity.Identifiers = append(entity.Identifiers, row)
		}
		return PublishEntityEvent(ctx, tx, userId, time.Now().UTC(), entity.ID, EntityEventActionCreate, &entity, nil)
	})
	if err != nil {
		return nil, err
	}

	return &entity, nil
}

func GetEntityById(ctx context.Context, userId int, id int) (*Entity, error) {
	db := config.GetDB()
	var entity Entity
	err := db.WithContext(ctx).
		Preload("Identifiers").
		Where("user_id = ?", userId).
		First(&entity, id).Error
	if err != nil {
		return nil, err
	}
	return &entity, nil
}

func ListEntities(ctx context.Context, userId int) ([]*Entity, error) {
	db := config.GetDB()
	var entities []*Entity
	err := db.WithContext(ctx).
		Preload("Identifiers").
		Where("user_id = ?", userId).
		Order("id").
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	return entities, nil
}

func UpdateEntity(ctx context.Context, id int, input *NewEntity) (*Entity, error) {
	db := config.GetDB()

	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId <= 0 {
		return nil, errors.New("user id is required")
	}

	if err := input.validate(ctx, userId, id); err != nil {
		return nil, err
	}

	entity, err := GetEntityById(ctx, userId, id)
	if err != nil {
		return nil, err
	}

	fillable := map[string]interface{}{
		"DisplayName": input.DisplayName,
		"Nickname":    input.Nickname,
		"Company":     input.Company,
		"JobTitle":    input.JobTitle,
		"Notes":       input.Notes,
		"Birthday":    input.Birthday,
	}
	if input.EntityType != "" {
		fillable["EntityType"] = input.EntityType
	}
	if err := db.WithContext(ctx).Model(entity).Updates(fillable).Error; err != nil {
		return nil, err
	}
	return entity, nil
}

// ProfileFieldCount counts the non-empty profile fields of an entity.
// Part of the completeness score used for merge primary selection.
func (e *Entity) ProfileFieldCount() int {
	count := 0
	for _, s := range []string{e.DisplayName, e.Nickname, e.Company, e.JobTitle, e.Notes} {
		if s != "" {
			count++
		}
	}
	if e.Birthday != nil {
		count++
	}
	return count
}

// dependentModels enumerates every record type that hangs off an entity via
// entity_id. Conversations carry their communications implicitly;
// relationships additionally reference a second entity via related_entity_id.
func dependentModels() []interface{} {
	return []interface{}{
		&Identifier{},
		&Relationship{},
		&Interaction{},
		&Conversation{},
		&Reminder{},
		&Gift{},
		&Attachment{},
		&TagMembership{},
		&GroupMembership{},
	}
}

// DependentCounts sums dependent records per entity across every dependent
// table. Used for primary selection and the merge conservation invariant.
func DependentCounts(ctx context.Context, tx *gorm.DB, entityIds []int) (map[int]int, error) {
	counts := map[int]int{}
	if len(entityIds) == 0 {
		return counts, nil
	}
	for _, model := range dependentModels() {
		var rows []struct {
			EntityID int
			N        int
		}
		err := tx.WithContext(ctx).
			Model(model).
			Select("entity_id, COUNT(*) AS n").
			Where("entity_id IN ?", entityIds).
			Group("entity_id").
			Scan(&rows).Error
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			counts[row.EntityID] += row.N
		}
	}
	return counts, nil
}
