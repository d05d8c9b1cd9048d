package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, migrationList())
	return m.Migrate()
}

func migrationList() []*gormigrate.Migration {
	return []*gormigrate.Migration{
		createDispatchesTable(),
		createDispatchDeliveriesTable(),
	}
}
