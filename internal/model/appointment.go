package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AppointmentStatus string

const (
	AppointmentStatusPending        AppointmentStatus = "pending"
	AppointmentStatusPendingPayment AppointmentStatus = "pending_payment"
	AppointmentStatusConfirmed      AppointmentStatus = "confirmed"
	AppointmentStatusCancelled      AppointmentStatus = "cancelled"
	AppointmentStatusCompleted      AppointmentStatus = "completed"
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case AppointmentStatusPending, AppointmentStatusPendingPayment, AppointmentStatusConfirmed,
		AppointmentStatusCancelled, AppointmentStatusCompleted:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"

	// Бесплатная запись или заказ: оплаты не было и не будет.
	PaymentStatusNotRequired PaymentStatus = "not_required"
)

// appointments
//
// Для одного провайдера интервалы [StartsAt, EndsAt) не отменённых записей не пересекаются.
type Appointment struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	// Человекочитаемый код, уникален навсегда.
	Code string `gorm:"type:varchar(16);not null;uniqueIndex"`

	ClientID   *uuid.UUID `gorm:"type:uuid;index"`
	ProviderID uuid.UUID  `gorm:"type:uuid;not null;index:idx_appointments_provider_range,priority:1"`
	SlotID     *uuid.UUID `gorm:"type:uuid;index"`

	StartsAt time.Time `gorm:"not null;index:idx_appointments_provider_range,priority:2"`
	EndsAt   time.Time `gorm:"not null"`

	Status        AppointmentStatus `gorm:"type:varchar(32);not null;index"`
	PaymentStatus PaymentStatus     `gorm:"type:varchar(32);not null"`
	AmountCents   int64             `gorm:"not null;default:0"`

	// Ответы, собранные в диалоге (имя, тема и т.п.).
	Intake datatypes.JSON

	CancelledAt *time.Time

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`

	// Удалённая запись остаётся в таблице и продолжает занимать свой код.
	DeletedAt gorm.DeletedAt `gorm:"index"`

	Client   *Client   `gorm:"foreignKey:ClientID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
	Provider *Provider `gorm:"foreignKey:ProviderID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}
