package models

import (
	"log"

	"github.com/mmdatafocus/kinship_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&User{},
		&Entity{}, &Identifier{}, &Relationship{},
		&Interaction{}, &Conversation{}, &Communication{},
		&Reminder{}, &Gift{}, &Attachment{},
		&Tag{}, &TagMembership{}, &Group{}, &GroupMembership{},
		&EntityEventRecord{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
