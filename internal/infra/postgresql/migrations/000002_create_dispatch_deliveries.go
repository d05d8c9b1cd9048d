package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/mailtrack/internal/repository"
	"gorm.io/gorm"
)

func createDispatchDeliveriesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_dispatch_deliveries",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.DeliveryModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_deliveries_tracking_id ON dispatch_deliveries (tracking_id) WHERE tracking_id IS NOT NULL`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.DeliveryModel{})
		},
	}
}
