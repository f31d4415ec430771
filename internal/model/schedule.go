package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// schedules
type Schedule struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	ProviderID uuid.UUID `gorm:"type:uuid;not null;index"`

	// Чистые даты без времени - datatypes.Date
	StartDate *datatypes.Date
	EndDate   *datatypes.Date

	// Правило повторения в виде JSON, см. ScheduleRule.
	Rules datatypes.JSON

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// ScheduleRule - сериализуемая форма правила повторения.
type ScheduleRule struct {
	Weekdays    []time.Weekday `json:"weekdays"`
	StartTime   string         `json:"start_time"` // "HH:MM" в поясе бизнеса
	EndTime     string         `json:"end_time"`   // "HH:MM"
	SlotMinutes int            `json:"slot_minutes"`
}
