package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// users - собеседник в мессенджере. ExternalID - идентификатор пользователя канала.
type User struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	ExternalID   string `gorm:"type:varchar(64);not null;uniqueIndex"`
	DisplayName  string `gorm:"type:varchar(255)"`
	ContactPhone string `gorm:"type:varchar(32)"`

	DateOfBirth *datatypes.Date

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`

	Client *Client `gorm:"foreignKey:UserID"`
}

// clients
type Client struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	UserID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`

	Comment string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`

	User *User `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}
