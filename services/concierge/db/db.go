package db

import (
	"gorm.io/gorm"

	"github.com/kaytu-io/ai-concierge/services/concierge/model"
)

type Database struct {
	Orm *gorm.DB
}

func New(orm *gorm.DB) Database {
	return Database{Orm: orm}
}

func (db Database) Initialize() error {
	return db.Orm.AutoMigrate(
		&model.Assistant{},
	)
}
