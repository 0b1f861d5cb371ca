package models

import "errors"

type EntityType string

const (
	EntityTypePerson       EntityType = "P"
	EntityTypeOrganization EntityType = "O"
)

func (t EntityType) Validate() error {
	switch t {
	case EntityTypePerson, EntityTypeOrganization:
		return nil
	}
	return errors.New("invalid entity type")
}

type IdentifierType string

const (
	IdentifierTypeEmail      IdentifierType = "email"
	IdentifierTypePhone      IdentifierType = "phone"
	IdentifierTypeExternalId IdentifierType = "external_id"
	IdentifierTypeUrl        IdentifierType = "url"
)

func (t IdentifierType) Validate() error {
	switch t {
	case IdentifierTypeEmail, IdentifierTypePhone, IdentifierTypeExternalId, IdentifierTypeUrl:
		return nil
	}
	return errors.New("invalid identifier type")
}

// BlindIndexContext scopes the blind-index token space per identifier type
// so equal plaintexts of different types never collide.
func (t IdentifierType) BlindIndexContext() string {
	return "identifier/" + string(t)
}

type EntityEventAction string

const (
	EntityEventActionCreate EntityEventAction = "C"
	EntityEventActionMerge  EntityEventAction = "M"
	EntityEventActionDelete EntityEventAction = "D"
)

const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)
