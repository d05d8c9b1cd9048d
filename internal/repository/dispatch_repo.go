package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/kursadbilgin/mailtrack/internal/domain"
	"gorm.io/gorm"
)

// DispatchRepository stores the audit trail of send requests.
type DispatchRepository interface {
	Create(ctx context.Context, d *domain.Dispatch) error
	GetByID(ctx context.Context, id string) (*domain.Dispatch, error)
}

type GormDispatchRepo struct {
	db *gorm.DB
}

func NewGormDispatchRepo(db *gorm.DB) *GormDispatchRepo {
	return &GormDispatchRepo{db: db}
}

// Create inserts the dispatch and its deliveries in one transaction.
func (r *GormDispatchRepo) Create(ctx context.Context, d *domain.Dispatch) error {
	if d == nil {
		return fmt.Errorf("%w: dispatch is required", domain.ErrValidation)
	}

	model := dispatchModelFromDomain(d)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deliveries := model.Deliveries
		model.Deliveries = nil
		if err := tx.Create(model).Error; err != nil {
			return err
		}
		if len(deliveries) == 0 {
			return nil
		}
		return tx.CreateInBatches(deliveries, 500).Error
	})
}

func (r *GormDispatchRepo) GetByID(ctx context.Context, id string) (*domain.Dispatch, error) {
	var model DispatchModel
	err := r.db.WithContext(ctx).
		Preload("Deliveries", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return dispatchModelToDomain(&model), nil
}
