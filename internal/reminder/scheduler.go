// Package reminder планирует и рассылает напоминания о записях.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Leganyst/counseling-booking/internal/messaging"
	"github.com/Leganyst/counseling-booking/internal/model"
	"github.com/Leganyst/counseling-booking/internal/repository"
)

const defaultBatch = 100

var offsets = []struct {
	typ    model.ReminderType
	before time.Duration
}{
	{model.ReminderTypeDayBefore, 24 * time.Hour},
	{model.ReminderTypeHourBefore, time.Hour},
}

// Scheduler создаёт задания напоминаний и периодически доставляет наступившие.
type Scheduler struct {
	db        *gorm.DB
	jobs      repository.ReminderRepository
	messenger messaging.Messenger
	loc       *time.Location
	batch     int
	now       func() time.Time
	log       *zap.Logger
}

type Option func(*Scheduler)

func WithClock(now func() time.Time) Option { return func(s *Scheduler) { s.now = now } }

func WithBatch(n int) Option { return func(s *Scheduler) { s.batch = n } }

func NewScheduler(db *gorm.DB, messenger messaging.Messenger, loc *time.Location, log *zap.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		db:        db,
		jobs:      repository.NewGormReminderRepository(db),
		messenger: messenger,
		loc:       loc,
		batch:     defaultBatch,
		now:       time.Now,
		log:       log,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	return s
}

// Schedule создаёт задания за 24 часа и за час до начала. Уже прошедшие моменты пропускаются.
func (s *Scheduler) Schedule(ctx context.Context, a *model.Appointment) error {
	now := s.now()
	jobs := make([]model.ReminderJob, 0, len(offsets))
	for _, o := range offsets {
		at := a.StartsAt.Add(-o.before)
		if !at.After(now) {
			continue
		}
		jobs = append(jobs, model.ReminderJob{
			AppointmentID: a.ID,
			Type:          o.typ,
			ScheduledFor:  at.UTC(),
			Status:        model.ReminderStatusPending,
		})
	}
	if err := s.jobs.CreateJobs(ctx, jobs); err != nil {
		return fmt.Errorf("create reminder jobs: %w", err)
	}
	return nil
}

// SweepResult - итог одного прохода.
type SweepResult struct {
	Sent    int
	Failed  int
	Skipped int
}

// Sweep доставляет наступившие задания. Каждое задание берётся в своей транзакции
// с повторной проверкой status = pending, поэтому параллельные проходы не доставляют дважды.
func (s *Scheduler) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	ids, err := s.jobs.ListDueIDs(ctx, s.now().UTC(), s.batch)
	if err != nil {
		return res, fmt.Errorf("list due reminders: %w", err)
	}
	for _, id := range ids {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		status, err := s.deliver(ctx, id)
		if err != nil {
			return res, err
		}
		switch status {
		case model.ReminderStatusSent:
			res.Sent++
		case model.ReminderStatusFailed:
			res.Failed++
		default:
			res.Skipped++
		}
	}
	return res, nil
}

// deliver возвращает итоговый статус задания или "" если задание уже забрал другой проход.
func (s *Scheduler) deliver(ctx context.Context, id uuid.UUID) (model.ReminderStatus, error) {
	var outcome model.ReminderStatus
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		jobs := repository.NewGormReminderRepository(tx)

		job, err := jobs.ClaimPending(ctx, id)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("claim reminder: %w", err)
		}
		a := job.Appointment
		if a == nil || a.Status == model.AppointmentStatusCancelled {
			return nil
		}
		if a.Client == nil || a.Client.User == nil || a.Client.User.ExternalID == "" {
			outcome = model.ReminderStatusFailed
			return jobs.MarkFailed(ctx, job.ID, "appointment has no reachable client")
		}

		_, sendErr := s.messenger.Send(ctx, messaging.Outgoing{
			UserID: a.Client.User.ExternalID,
			Text:   s.text(job.Type, a),
		})
		if sendErr != nil {
			s.log.Warn("reminder delivery failed",
				zap.String("job_id", job.ID.String()), zap.String("code", a.Code), zap.Error(sendErr))
			outcome = model.ReminderStatusFailed
			return jobs.MarkFailed(ctx, job.ID, sendErr.Error())
		}
		outcome = model.ReminderStatusSent
		return jobs.MarkSent(ctx, job.ID, s.now().UTC())
	})
	if err != nil {
		return "", err
	}
	return outcome, nil
}

func (s *Scheduler) text(t model.ReminderType, a *model.Appointment) string {
	when := "in one hour"
	if t == model.ReminderTypeDayBefore {
		when = "tomorrow"
	}
	provider := "your counselor"
	if a.Provider != nil && a.Provider.DisplayName != "" {
		provider = a.Provider.DisplayName
	}
	start := a.StartsAt.In(s.loc)
	return fmt.Sprintf("Reminder: your appointment with %s is %s, %s at %s (code %s).",
		provider, when, start.Format("02.01.2006"), start.Format("15:04"), a.Code)
}

// Run выполняет Sweep сразу и затем каждые interval до отмены ctx.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		res, err := s.Sweep(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.log.Error("reminder sweep", zap.Error(err))
		} else if res.Sent+res.Failed > 0 {
			s.log.Info("reminder sweep", zap.Int("sent", res.Sent), zap.Int("failed", res.Failed))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
