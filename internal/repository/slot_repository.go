package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Leganyst/counseling-booking/internal/model"
)

type SlotRepository interface {
	// Свободный слот провайдера, целиком покрывающий [start, end), под блокировкой FOR UPDATE.
	LockCovering(ctx context.Context, providerID uuid.UUID, start, end time.Time) (*model.AvailabilitySlot, error)
	// Все слоты провайдера по интервалу.
	ListByProviderRange(ctx context.Context, providerID string, from, to time.Time) ([]model.AvailabilitySlot, error)
	// Отметить слот занятым/свободным.
	SetBooked(ctx context.Context, id uuid.UUID, booked bool) error
	// Создать слот.
	Create(ctx context.Context, slot *model.AvailabilitySlot) error
	// Есть ли у провайдера слот ровно с такими границами.
	Exists(ctx context.Context, providerID uuid.UUID, start, end time.Time) (bool, error)
}

type GormSlotRepository struct {
	db *gorm.DB
}

func NewGormSlotRepository(db *gorm.DB) *GormSlotRepository {
	return &GormSlotRepository{db: db}
}

func (r *GormSlotRepository) LockCovering(
	ctx context.Context,
	providerID uuid.UUID,
	start, end time.Time,
) (*model.AvailabilitySlot, error) {
	var slot model.AvailabilitySlot
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("provider_id = ?", providerID).
		Where("booked = ?", false).
		Where("starts_at <= ? AND ends_at >= ?", start, end).
		Order("starts_at ASC").
		First(&slot).Error
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

func (r *GormSlotRepository) ListByProviderRange(
	ctx context.Context,
	providerID string,
	from, to time.Time,
) ([]model.AvailabilitySlot, error) {
	var slots []model.AvailabilitySlot
	err := r.db.WithContext(ctx).
		Where("provider_id = ?", providerID).
		Where("starts_at >= ? AND ends_at <= ?", from, to).
		Order("starts_at ASC").
		Find(&slots).Error
	if err != nil {
		return nil, err
	}
	return slots, nil
}

func (r *GormSlotRepository) SetBooked(ctx context.Context, id uuid.UUID, booked bool) error {
	return r.db.WithContext(ctx).
		Model(&model.AvailabilitySlot{}).
		Where("id = ?", id).
		Update("booked", booked).
		Error
}

func (r *GormSlotRepository) Create(ctx context.Context, slot *model.AvailabilitySlot) error {
	return r.db.WithContext(ctx).Create(slot).Error
}

func (r *GormSlotRepository) Exists(ctx context.Context, providerID uuid.UUID, start, end time.Time) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&model.AvailabilitySlot{}).
		Where("provider_id = ? AND starts_at = ? AND ends_at = ?", providerID, start, end).
		Count(&n).Error
	return n > 0, err
}
