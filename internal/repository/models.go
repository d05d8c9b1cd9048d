package repository

import (
	"time"

	"github.com/kursadbilgin/mailtrack/internal/domain"
)

// DispatchModel is the persistence model for the dispatches table.
type DispatchModel struct {
	ID          string          `gorm:"type:uuid;primaryKey"`
	FromAddress string          `gorm:"type:varchar(320);not null"`
	Subject     string          `gorm:"type:text;not null"`
	TotalCount  int             `gorm:"not null"`
	FailedCount int             `gorm:"not null;default:0"`
	Deliveries  []DeliveryModel `gorm:"foreignKey:DispatchID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time
}

func (DispatchModel) TableName() string {
	return "dispatches"
}

// DeliveryModel is the persistence model for dispatch_deliveries.
type DeliveryModel struct {
	ID         uint                  `gorm:"primaryKey"`
	DispatchID string                `gorm:"type:uuid;not null;index"`
	Position   int                   `gorm:"not null"`
	Email      string                `gorm:"type:varchar(320);not null"`
	Tracked    bool                  `gorm:"not null"`
	TrackingID *string               `gorm:"type:uuid"`
	Status     domain.DeliveryStatus `gorm:"type:varchar(10);not null"`
	Error      *string               `gorm:"type:text"`
	CreatedAt  time.Time
}

func (DeliveryModel) TableName() string {
	return "dispatch_deliveries"
}

func dispatchModelFromDomain(d *domain.Dispatch) *DispatchModel {
	if d == nil {
		return nil
	}

	deliveries := make([]DeliveryModel, len(d.Deliveries))
	for i, delivery := range d.Deliveries {
		deliveries[i] = DeliveryModel{
			DispatchID: d.ID,
			Position:   i,
			Email:      delivery.Email,
			Tracked:    delivery.Tracked,
			TrackingID: delivery.TrackingID,
			Status:     delivery.Status,
			Error:      delivery.Error,
			CreatedAt:  d.CreatedAt,
		}
	}

	return &DispatchModel{
		ID:          d.ID,
		FromAddress: d.From,
		Subject:     d.Subject,
		TotalCount:  d.TotalCount,
		FailedCount: d.FailedCount,
		Deliveries:  deliveries,
		CreatedAt:   d.CreatedAt,
	}
}

func dispatchModelToDomain(m *DispatchModel) *domain.Dispatch {
	if m == nil {
		return nil
	}

	deliveries := make([]domain.Delivery, len(m.Deliveries))
	for i, delivery := range m.Deliveries {
		deliveries[i] = domain.Delivery{
			Email:      delivery.Email,
			Tracked:    delivery.Tracked,
			TrackingID: delivery.TrackingID,
			Status:     delivery.Status,
			Error:      delivery.Error,
		}
	}

	return &domain.Dispatch{
		ID:          m.ID,
		From:        m.FromAddress,
		Subject:     m.Subject,
		TotalCount:  m.TotalCount,
		FailedCount: m.FailedCount,
		Deliveries:  deliveries,
		CreatedAt:   m.CreatedAt,
	}
}
