package model

import (
	"time"

	"github.com/google/uuid"
)

// Тип события аудита.
type EventType string

const (
	EventTypeAppointmentCreated       EventType = "appointment_created"
	EventTypeAppointmentStatusChanged EventType = "appointment_status_changed"
	EventTypeAppointmentDeleted       EventType = "appointment_deleted"
	EventTypePaymentUpdated           EventType = "payment_updated"
)

// events - события аудита
type Event struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	EventType EventType `gorm:"type:varchar(64);not null;index"`

	CreatedAt time.Time `gorm:"not null;index"`

	// Без внешнего ключа: событие переживает удаление записи.
	AppointmentID *uuid.UUID `gorm:"type:uuid;index"`

	Details string `gorm:"type:text"`
}
