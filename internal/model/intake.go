package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// support_requests
type SupportRequest struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey"`
	ClientID uuid.UUID `gorm:"type:uuid;not null;index"`

	Name    string `gorm:"type:varchar(255);not null"`
	Phone   string `gorm:"type:varchar(32)"`
	Message string `gorm:"type:text;not null"`

	CreatedAt time.Time `gorm:"not null"`
}

// mentorship_requests
type MentorshipRequest struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey"`
	ClientID uuid.UUID `gorm:"type:uuid;not null;index"`

	Name  string `gorm:"type:varchar(255);not null"`
	Phone string `gorm:"type:varchar(32)"`
	Field string `gorm:"type:varchar(255);not null"`
	Level string `gorm:"type:varchar(32);not null"`
	Goals string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null"`
}

// book_orders
type BookOrder struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey"`
	ClientID uuid.UUID `gorm:"type:uuid;not null;index"`

	Title      string `gorm:"type:varchar(255);not null"`
	Quantity   int    `gorm:"not null"`
	Address    string `gorm:"type:text;not null"`
	Phone      string `gorm:"type:varchar(32)"`
	TotalCents int64  `gorm:"not null;default:0"`

	PaymentStatus PaymentStatus `gorm:"type:varchar(32);not null"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// Reference - ссылка для платёжного шлюза.
func (o *BookOrder) Reference() string {
	return "ORD-" + o.ID.String()
}

// reviews - одна на запись.
type Review struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	AppointmentID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
	ClientID      uuid.UUID `gorm:"type:uuid;not null;index"`

	Rating  int    `gorm:"not null"`
	Comment string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null"`
}

// OrderIDFromReference разбирает ссылку вида ORD-<uuid>.
func OrderIDFromReference(ref string) (uuid.UUID, bool) {
	rest, ok := strings.CutPrefix(ref, "ORD-")
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(rest)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
