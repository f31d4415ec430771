package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Leganyst/counseling-booking/internal/model"
)

type AppointmentRepository interface {
	// Создать запись.
	Create(ctx context.Context, a *model.Appointment) error
	// Получить запись по ID.
	GetByID(ctx context.Context, id string) (*model.Appointment, error)
	// Получить запись по коду (с провайдером и клиентом).
	GetByCode(ctx context.Context, code string) (*model.Appointment, error)
	// Не отменённые записи провайдера, пересекающие [start, end).
	FindOverlapping(ctx context.Context, providerID uuid.UUID, start, end time.Time) ([]model.Appointment, error)
	// Записи провайдера, начинающиеся в [from, to).
	ListByProviderRange(ctx context.Context, providerID string, from, to time.Time) ([]model.Appointment, error)
	// Обновить статус (при отмене - cancelledAt).
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.AppointmentStatus, cancelledAt *time.Time) error
	// Взять запись под блокировку FOR UPDATE.
	LockByID(ctx context.Context, id string) (*model.Appointment, error)
	LockByCode(ctx context.Context, code string) (*model.Appointment, error)
	// Применить результат оплаты, только если оплата ещё pending. Возвращает число изменённых строк.
	ApplyPayment(ctx context.Context, id uuid.UUID, payment model.PaymentStatus, status *model.AppointmentStatus) (int64, error)
	// Удалить запись.
	Delete(ctx context.Context, id uuid.UUID) error

	CodeExists(ctx context.Context, code string) (bool, error)
	CountAppointments(ctx context.Context) (int64, error)
}

// Реализация на GORM.
type GormAppointmentRepository struct {
	db *gorm.DB
}

func NewGormAppointmentRepository(db *gorm.DB) *GormAppointmentRepository {
	return &GormAppointmentRepository{db: db}
}

func (r *GormAppointmentRepository) Create(ctx context.Context, a *model.Appointment) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *GormAppointmentRepository) GetByID(ctx context.Context, id string) (*model.Appointment, error) {
	var a model.Appointment
	if err := r.db.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *GormAppointmentRepository) GetByCode(ctx context.Context, code string) (*model.Appointment, error) {
	var a model.Appointment
	err := r.db.WithContext(ctx).
		Preload("Provider").
		Preload("Client.User").
		First(&a, "code = ?", code).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *GormAppointmentRepository) FindOverlapping(
	ctx context.Context,
	providerID uuid.UUID,
	start, end time.Time,
) ([]model.Appointment, error) {
	var list []model.Appointment
	err := r.db.WithContext(ctx).
		Where("provider_id = ?", providerID).
		Where("status <> ?", model.AppointmentStatusCancelled).
		// NOT (newEnd <= existingStart OR newStart >= existingEnd)
		Where("NOT (? <= starts_at OR ? >= ends_at)", end, start).
		Order("starts_at ASC").
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	return list, nil
}

func (r *GormAppointmentRepository) ListByProviderRange(
	ctx context.Context,
	providerID string,
	from, to time.Time,
) ([]model.Appointment, error) {
	var list []model.Appointment
	err := r.db.WithContext(ctx).
		Where("provider_id = ?", providerID).
		Where("starts_at >= ? AND starts_at < ?", from, to).
		Order("starts_at ASC").
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	return list, nil
}

func (r *GormAppointmentRepository) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	status model.AppointmentStatus,
	cancelledAt *time.Time,
) error {
	update := map[string]any{
		"status": status,
	}
	if cancelledAt != nil {
		update["cancelled_at"] = *cancelledAt
	}
	return r.db.WithContext(ctx).
		Model(&model.Appointment{}).
		Where("id = ?", id).
		Updates(update).
		Error
}

func (r *GormAppointmentRepository) LockByID(ctx context.Context, id string) (*model.Appointment, error) {
	var a model.Appointment
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&a, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *GormAppointmentRepository) LockByCode(ctx context.Context, code string) (*model.Appointment, error) {
	var a model.Appointment
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&a, "code = ?", code).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *GormAppointmentRepository) ApplyPayment(
	ctx context.Context,
	id uuid.UUID,
	payment model.PaymentStatus,
	status *model.AppointmentStatus,
) (int64, error) {
	update := map[string]any{
		"payment_status": payment,
	}
	if status != nil {
		update["status"] = *status
	}
	res := r.db.WithContext(ctx).
		Model(&model.Appointment{}).
		Where("id = ? AND payment_status = ?", id, model.PaymentStatusPending).
		Updates(update)
	return res.RowsAffected, res.Error
}

func (r *GormAppointmentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&model.Appointment{}, "id = ?", id).Error
}

// CodeExists и CountAppointments учитывают и удалённые записи: код не выдаётся повторно.
func (r *GormAppointmentRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Unscoped().Model(&model.Appointment{}).Where("code = ?", code).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *GormAppointmentRepository) CountAppointments(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Unscoped().Model(&model.Appointment{}).Count(&n).Error
	return n, err
}
