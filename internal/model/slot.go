package model

import (
	"time"

	"github.com/google/uuid"
)

// availability_slots - заранее объявленное окно провайдера (опциональная модель ёмкости).
type AvailabilitySlot struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	ScheduleID *uuid.UUID `gorm:"type:uuid;index"`
	ProviderID uuid.UUID  `gorm:"type:uuid;not null;index"`

	StartsAt time.Time `gorm:"not null;index"`
	EndsAt   time.Time `gorm:"not null"`

	Booked bool `gorm:"not null;default:false;index"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`

	Schedule *Schedule `gorm:"foreignKey:ScheduleID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
}
