package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/Leganyst/counseling-booking/internal/model"
)

// Контактные данные, собранные диалогом. Пустые поля не перезаписывают сохранённые.
type UserContacts struct {
	DisplayName  string
	ContactPhone string
	DateOfBirth  *datatypes.Date
}

type UserRepository interface {
	FindByExternalID(ctx context.Context, externalID string) (*model.User, error)
	UpsertUser(ctx context.Context, externalID string, contacts UserContacts) (*model.User, error)
}

type GormUserRepository struct {
	db *gorm.DB
}

func NewGormUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{db: db}
}

func (r *GormUserRepository) FindByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	var u model.User
	if err := r.db.WithContext(ctx).Where("external_id = ?", externalID).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// NormalizePhone оставляет ведущий "+" и цифры; форматирование отбрасывается.
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return ""
	}
	b := make([]byte, 0, len(phone))
	if phone[0] == '+' {
		b = append(b, '+')
	}
	for i := 0; i < len(phone); i++ {
		c := phone[i]
		if c >= '0' && c <= '9' {
			b = append(b, c)
		}
	}
	return string(b)
}

func (r *GormUserRepository) UpsertUser(ctx context.Context, externalID string, contacts UserContacts) (*model.User, error) {
	phone := NormalizePhone(contacts.ContactPhone)

	var u model.User
	err := r.db.WithContext(ctx).Where("external_id = ?", externalID).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		u = model.User{
			ExternalID:   externalID,
			DisplayName:  contacts.DisplayName,
			ContactPhone: phone,
			DateOfBirth:  contacts.DateOfBirth,
		}
		if err := r.db.WithContext(ctx).Create(&u).Error; err != nil {
			return nil, err
		}
		return &u, nil
	}
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if contacts.DisplayName != "" {
		updates["display_name"] = contacts.DisplayName
		u.DisplayName = contacts.DisplayName
	}
	if phone != "" {
		updates["contact_phone"] = phone
		u.ContactPhone = phone
	}
	if contacts.DateOfBirth != nil {
		updates["date_of_birth"] = *contacts.DateOfBirth
		u.DateOfBirth = contacts.DateOfBirth
	}
	if len(updates) == 0 {
		return &u, nil
	}
	if err := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", u.ID).Updates(updates).Error; err != nil {
		return nil, err
	}
	return &u, nil
}
