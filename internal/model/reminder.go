package model

import (
	"time"

	"github.com/google/uuid"
)

type ReminderType string

const (
	ReminderTypeDayBefore  ReminderType = "day_before"
	ReminderTypeHourBefore ReminderType = "hour_before"
)

// Переходы статуса только в одну сторону: pending -> sent | failed.
type ReminderStatus string

const (
	ReminderStatusPending ReminderStatus = "pending"
	ReminderStatusSent    ReminderStatus = "sent"
	ReminderStatusFailed  ReminderStatus = "failed"
)

// reminder_jobs
type ReminderJob struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	AppointmentID uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:idx_reminder_jobs_appointment_type"`
	Type          ReminderType `gorm:"type:varchar(32);not null;uniqueIndex:idx_reminder_jobs_appointment_type"`

	ScheduledFor time.Time      `gorm:"not null;index"`
	Status       ReminderStatus `gorm:"type:varchar(32);not null;index"`

	SentAt    *time.Time
	LastError string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`

	Appointment *Appointment `gorm:"foreignKey:AppointmentID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}
