package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/mailtrack/internal/repository"
	"gorm.io/gorm"
)

func createDispatchesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_dispatches",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.DispatchModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_dispatches_created_at ON dispatches (created_at)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.DispatchModel{})
		},
	}
}
