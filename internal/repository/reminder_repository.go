package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Leganyst/counseling-booking/internal/model"
)

type ReminderRepository interface {
	// Создать задания; уже существующие (appointment_id, type) пропускаются.
	CreateJobs(ctx context.Context, jobs []model.ReminderJob) error
	// ID ожидающих заданий со сроком <= now у не отменённых записей.
	ListDueIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
	// Взять задание под блокировку, если оно всё ещё pending. Уже занятые другим воркером пропускаются.
	ClaimPending(ctx context.Context, id uuid.UUID) (*model.ReminderJob, error)
	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	DeleteByAppointment(ctx context.Context, appointmentID uuid.UUID) error
	ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]model.ReminderJob, error)
}

type GormReminderRepository struct {
	db *gorm.DB
}

func NewGormReminderRepository(db *gorm.DB) *GormReminderRepository {
	return &GormReminderRepository{db: db}
}

func (r *GormReminderRepository) CreateJobs(ctx context.Context, jobs []model.ReminderJob) error {
	if len(jobs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "appointment_id"}, {Name: "type"}},
			DoNothing: true,
		}).
		Create(&jobs).Error
}

func (r *GormReminderRepository) ListDueIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	q := r.db.WithContext(ctx).
		Model(&model.ReminderJob{}).
		Joins("JOIN appointments ON appointments.id = reminder_jobs.appointment_id").
		Where("reminder_jobs.status = ?", model.ReminderStatusPending).
		Where("reminder_jobs.scheduled_for <= ?", now).
		Where("appointments.status <> ?", model.AppointmentStatusCancelled).
		Order("reminder_jobs.scheduled_for ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Pluck("reminder_jobs.id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *GormReminderRepository) ClaimPending(ctx context.Context, id uuid.UUID) (*model.ReminderJob, error) {
	var job model.ReminderJob
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("id = ? AND status = ?", id, model.ReminderStatusPending).
		Preload("Appointment.Client.User").
		Preload("Appointment.Provider").
		First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *GormReminderRepository) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.ReminderJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":  model.ReminderStatusSent,
			"sent_at": at,
		}).Error
}

func (r *GormReminderRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	return r.db.WithContext(ctx).
		Model(&model.ReminderJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     model.ReminderStatusFailed,
			"last_error": reason,
		}).Error
}

func (r *GormReminderRepository) DeleteByAppointment(ctx context.Context, appointmentID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("appointment_id = ?", appointmentID).
		Delete(&model.ReminderJob{}).Error
}

func (r *GormReminderRepository) ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]model.ReminderJob, error) {
	var jobs []model.ReminderJob
	err := r.db.WithContext(ctx).
		Where("appointment_id = ?", appointmentID).
		Order("scheduled_for ASC").
		Find(&jobs).Error
	return jobs, err
}
