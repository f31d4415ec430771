package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Leganyst/counseling-booking/internal/model"
)

// IntakeRepository хранит заявки диалогов, не связанные с календарём.
type IntakeRepository interface {
	CreateSupportRequest(ctx context.Context, req *model.SupportRequest) error
	CreateMentorshipRequest(ctx context.Context, req *model.MentorshipRequest) error
	CreateBookOrder(ctx context.Context, order *model.BookOrder) error
	// Применить результат оплаты заказа, только если оплата ещё pending.
	ApplyOrderPayment(ctx context.Context, orderID uuid.UUID, status model.PaymentStatus) (int64, error)
	CreateReview(ctx context.Context, review *model.Review) error
	ReviewExists(ctx context.Context, appointmentID uuid.UUID) (bool, error)
}

type GormIntakeRepository struct {
	db *gorm.DB
}

func NewGormIntakeRepository(db *gorm.DB) *GormIntakeRepository {
	return &GormIntakeRepository{db: db}
}

func (r *GormIntakeRepository) CreateSupportRequest(ctx context.Context, req *model.SupportRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *GormIntakeRepository) CreateMentorshipRequest(ctx context.Context, req *model.MentorshipRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *GormIntakeRepository) CreateBookOrder(ctx context.Context, order *model.BookOrder) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *GormIntakeRepository) ApplyOrderPayment(ctx context.Context, orderID uuid.UUID, status model.PaymentStatus) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&model.BookOrder{}).
		Where("id = ? AND payment_status = ?", orderID, model.PaymentStatusPending).
		Update("payment_status", status)
	return res.RowsAffected, res.Error
}

func (r *GormIntakeRepository) CreateReview(ctx context.Context, review *model.Review) error {
	return r.db.WithContext(ctx).Create(review).Error
}

func (r *GormIntakeRepository) ReviewExists(ctx context.Context, appointmentID uuid.UUID) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&model.Review{}).
		Where("appointment_id = ?", appointmentID).
		Count(&n).Error
	return n > 0, err
}
