package models

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/kinship_backend/config"
	"github.com/mmdatafocus/kinship_backend/utils"
	"gorm.io/gorm"
)

// EntityEventRecord is the transactional outbox row for entity lifecycle
// events. It is written inside the caller's DB transaction; publishing to
// Pub/Sub happens asynchronously via the outbox dispatcher after commit.
type EntityEventRecord struct {
	ID            int               `gorm:"primary_key;index:idx_outbox_dispatch,priority:3" json:"id"`
	UserID        int               `gorm:"index;not null" json:"user_id"`
	EventDateTime time.Time         `gorm:"index;not null" json:"event_date_time"`
	EntityID      int               `json:"entity_id"`
	Action        EntityEventAction `gorm:"type:enum('C','M','D')" json:"action"`
	OldObj        []byte            `gorm:"type:blob" json:"old_obj"`
	NewObj        []byte            `gorm:"type:blob" json:"new_obj"`

	// Outbox metadata (publish happens after commit via dispatcher).
	PublishStatus    string     `gorm:"size:20;index;not null;default:'PENDING';index:idx_outbox_dispatch,priority:1" json:"publish_status"` // PENDING|PROCESSING|SENT|FAILED|DEAD
	PublishedAt      *time.Time `gorm:"index" json:"published_at"`
	PubSubMessageId  *string    `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts  int        `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time `gorm:"index;index:idx_outbox_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time `gorm:"index" json:"locked_at"`
	LockedBy         *string    `gorm:"size:100" json:"locked_by"`
	LastPublishError *string    `gorm:"type:text" json:"last_publish_error"`
	CorrelationId    string     `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// PublishEntityEvent writes the outbox row inside the caller's DB
// transaction but does NOT publish to Pub/Sub.
func PublishEntityEvent(ctx context.Context, db *gorm.DB, userId int, eventDateTime time.Time, entityId int, action EntityEventAction, obj interface{}, oldObj interface{}) error {

	var objInByte []byte
	var oldObjInByte []byte
	var err error

	if obj != nil {
		objInByte, err = json.Marshal(obj)
		if err != nil {
			return err
		}
	}
	if oldObj != nil {
		oldObjInByte, err = json.Marshal(oldObj)
		if err != nil {
			return err
		}
	}

	record := EntityEventRecord{
		UserID:        userId,
		EventDateTime: eventDateTime,
		EntityID:      entityId,
		Action:        action,
		NewObj:        objInByte,
		OldObj:        oldObjInByte,
		PublishStatus: OutboxPublishStatusPending,
		CorrelationId: correlationIdFromContextOrNew(ctx),
	}
	return db.Create(&record).Error
}

func ConvertToEntityEventMessage(record EntityEventRecord) config.EntityEventMessage {
	return config.EntityEventMessage{
		ID:            record.ID,
		UserId:        record.UserID,
		EventDateTime: record.EventDateTime,
		EntityId:      record.EntityID,
		Action:        string(record.Action),
		OldObj:        record.OldObj,
		NewObj:        record.NewObj,
		CorrelationId: record.CorrelationId,
	}
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}
