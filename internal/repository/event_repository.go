package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Leganyst/counseling-booking/internal/model"
)

type EventRepository interface {
	Record(ctx context.Context, t model.EventType, appointmentID *uuid.UUID, details string) error
}

type GormEventRepository struct {
	db *gorm.DB
}

func NewGormEventRepository(db *gorm.DB) *GormEventRepository {
	return &GormEventRepository{db: db}
}

func (r *GormEventRepository) Record(ctx context.Context, t model.EventType, appointmentID *uuid.UUID, details string) error {
	return r.db.WithContext(ctx).Create(&model.Event{
		EventType:     t,
		AppointmentID: appointmentID,
		Details:       details,
	}).Error
}
