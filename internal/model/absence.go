package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// absence_days - день, в который провайдер не принимает.
type AbsenceDay struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	ProviderID uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_absence_provider_date"`
	Date       datatypes.Date `gorm:"not null;uniqueIndex:idx_absence_provider_date"`
	Reason     string         `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null"`
}

// DateOf - календарная дата t в поясе loc, нормализованная к полуночи UTC для хранения.
func DateOf(t time.Time, loc *time.Location) datatypes.Date {
	if loc != nil {
		t = t.In(loc)
	}
	y, m, d := t.Date()
	return datatypes.Date(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
}
