package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/Leganyst/counseling-booking/internal/model"
)

type AbsenceRepository interface {
	// Есть ли у провайдера день отсутствия на дату.
	Exists(ctx context.Context, providerID uuid.UUID, date datatypes.Date) (bool, error)
	// Дни отсутствия провайдера в [from, to] по возрастанию даты.
	ListBetween(ctx context.Context, providerID uuid.UUID, from, to datatypes.Date) ([]model.AbsenceDay, error)
	Create(ctx context.Context, a *model.AbsenceDay) error
}

type GormAbsenceRepository struct {
	db *gorm.DB
}

func NewGormAbsenceRepository(db *gorm.DB) *GormAbsenceRepository {
	return &GormAbsenceRepository{db: db}
}

func (r *GormAbsenceRepository) Exists(ctx context.Context, providerID uuid.UUID, date datatypes.Date) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&model.AbsenceDay{}).
		Where("provider_id = ? AND date = ?", providerID, date).
		Count(&n).Error
	return n > 0, err
}

func (r *GormAbsenceRepository) ListBetween(ctx context.Context, providerID uuid.UUID, from, to datatypes.Date) ([]model.AbsenceDay, error) {
	var out []model.AbsenceDay
	err := r.db.WithContext(ctx).
		Where("provider_id = ? AND date >= ? AND date <= ?", providerID, from, to).
		Order("date ASC").
		Find(&out).Error
	return out, err
}

func (r *GormAbsenceRepository) Create(ctx context.Context, a *model.AbsenceDay) error {
	return r.db.WithContext(ctx).Create(a).Error
}
