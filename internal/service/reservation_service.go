package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/Leganyst/counseling-booking/internal/calendar"
	"github.com/Leganyst/counseling-booking/internal/codegen"
	"github.com/Leganyst/counseling-booking/internal/model"
	"github.com/Leganyst/counseling-booking/internal/repository"
)

// Сколько раз повторяем транзакцию, если уникальный индекс по коду сработал у конкурента.
const codeCollisionRetries = 3

// ReminderPlanner планирует напоминания для созданной записи.
type ReminderPlanner interface {
	Schedule(ctx context.Context, a *model.Appointment) error
}

// Разрешённые переходы статуса записи.
var allowedTransitions = map[model.AppointmentStatus][]model.AppointmentStatus{
	model.AppointmentStatusPending: {
		model.AppointmentStatusPendingPayment,
		model.AppointmentStatusConfirmed,
		model.AppointmentStatusCancelled,
	},
	model.AppointmentStatusPendingPayment: {
		model.AppointmentStatusConfirmed,
		model.AppointmentStatusCancelled,
	},
	model.AppointmentStatusConfirmed: {
		model.AppointmentStatusCompleted,
		model.AppointmentStatusCancelled,
	},
}

func canTransition(from, to model.AppointmentStatus) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ReservationService атомарно бронирует интервалы провайдера и ведёт жизненный цикл записи.
type ReservationService struct {
	db        *gorm.DB
	hours     *calendar.WorkingHours
	codes     *codegen.Generator
	absences  repository.AbsenceRepository
	appts     repository.AppointmentRepository
	reminders ReminderPlanner
	useSlots  bool
	now       func() time.Time
	log       *zap.Logger
}

type ReservationOption func(*ReservationService)

// WithSlots требует свободный AvailabilitySlot, покрывающий интервал.
func WithSlots(enabled bool) ReservationOption {
	return func(s *ReservationService) { s.useSlots = enabled }
}

func WithReminders(p ReminderPlanner) ReservationOption {
	return func(s *ReservationService) { s.reminders = p }
}

func WithClock(now func() time.Time) ReservationOption {
	return func(s *ReservationService) { s.now = now }
}

func NewReservationService(
	db *gorm.DB,
	hours *calendar.WorkingHours,
	codes *codegen.Generator,
	log *zap.Logger,
	opts ...ReservationOption,
) *ReservationService {
	s := &ReservationService{
		db:       db,
		hours:    hours,
		codes:    codes,
		absences: repository.NewGormAbsenceRepository(db),
		appts:    repository.NewGormAppointmentRepository(db),
		now:      time.Now,
		log:      log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type ReserveRequest struct {
	ProviderID  string
	ClientID    *uuid.UUID
	Start       time.Time
	End         time.Time
	AmountCents int64
	Intake      map[string]string
}

// Reserve проверяет рабочее время и отсутствие провайдера, затем в одной транзакции
// блокирует провайдера, перепроверяет пересечения, генерирует код и вставляет запись.
func (s *ReservationService) Reserve(ctx context.Context, req ReserveRequest) (*model.Appointment, error) {
	if req.ProviderID == "" {
		return nil, validationf("provider_id is required")
	}
	providerID, err := uuid.Parse(req.ProviderID)
	if err != nil {
		return nil, validationf("invalid provider_id")
	}
	if req.AmountCents < 0 {
		return nil, validationf("amount must not be negative")
	}

	start, end := req.Start.UTC(), req.End.UTC()
	if ok, reason := s.hours.IsValidRange(start, end); !ok {
		return nil, &ValidationError{Reason: reason}
	}
	if !start.After(s.now()) {
		return nil, validationf("the requested time is in the past")
	}

	day := model.DateOf(start, s.hours.Location())
	absent, err := s.absences.Exists(ctx, providerID, day)
	if err != nil {
		return nil, fmt.Errorf("check absence: %w", err)
	}
	if absent {
		return nil, conflictf("the provider is not available on %s", start.In(s.hours.Location()).Format("2006-01-02"))
	}

	var intake datatypes.JSON
	if len(req.Intake) > 0 {
		raw, err := json.Marshal(req.Intake)
		if err != nil {
			return nil, fmt.Errorf("marshal intake: %w", err)
		}
		intake = raw
	}

	var appt *model.Appointment
	for attempt := 1; ; attempt++ {
		appt, err = s.reserveTx(ctx, providerID, req, start, end, intake)
		if errors.Is(err, gorm.ErrDuplicatedKey) && attempt < codeCollisionRetries {
			s.log.Warn("appointment code taken concurrently, retrying", zap.Int("attempt", attempt))
			continue
		}
		break
	}
	if err != nil {
		var exhausted *codegen.ExhaustionError
		if errors.As(err, &exhausted) {
			s.log.Error("appointment code keyspace exhausted",
				zap.Bool("alert", true),
				zap.Int("max_length", exhausted.MaxLength),
				zap.Error(err),
			)
		}
		return nil, err
	}

	s.log.Info("appointment reserved",
		zap.String("code", appt.Code),
		zap.String("provider_id", appt.ProviderID.String()),
		zap.Time("starts_at", appt.StartsAt),
		zap.String("status", string(appt.Status)),
	)

	if s.reminders != nil {
		if err := s.reminders.Schedule(ctx, appt); err != nil {
			s.log.Error("schedule reminders", zap.String("code", appt.Code), zap.Error(err))
		}
	}
	return appt, nil
}

func (s *ReservationService) reserveTx(
	ctx context.Context,
	providerID uuid.UUID,
	req ReserveRequest,
	start, end time.Time,
	intake datatypes.JSON,
) (*model.Appointment, error) {
	var appt *model.Appointment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		providers := repository.NewGormProviderRepository(tx)
		appts := repository.NewGormAppointmentRepository(tx)
		slots := repository.NewGormSlotRepository(tx)
		events := repository.NewGormEventRepository(tx)

		// Строка провайдера - суррогатная блокировка всего его календаря.
		if _, err := providers.LockByID(ctx, providerID.String()); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("provider %s: %w", providerID, ErrNotFound)
			}
			return fmt.Errorf("lock provider: %w", err)
		}

		var slot *model.AvailabilitySlot
		if s.useSlots {
			var err error
			slot, err = slots.LockCovering(ctx, providerID, start, end)
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("lock slot: %w", err)
			}
			if ok, reason := validateSlotModel(slot, start, end); !ok {
				return &ConflictError{Reason: reason}
			}
		}

		overlapping, err := appts.FindOverlapping(ctx, providerID, start, end)
		if err != nil {
			return fmt.Errorf("find overlapping: %w", err)
		}
		if len(overlapping) > 0 {
			return conflictf("this time overlaps another appointment (%s); please choose another time",
				s.formatRange(overlapping[0].StartsAt, overlapping[0].EndsAt))
		}

		code, err := s.codes.Generate(ctx, appts)
		if err != nil {
			return err
		}

		a := &model.Appointment{
			Code:          code,
			ClientID:      req.ClientID,
			ProviderID:    providerID,
			StartsAt:      start,
			EndsAt:        end,
			Status:        model.AppointmentStatusPending,
			PaymentStatus: model.PaymentStatusNotRequired,
			AmountCents:   req.AmountCents,
			Intake:        intake,
		}
		if req.AmountCents > 0 {
			a.Status = model.AppointmentStatusPendingPayment
			a.PaymentStatus = model.PaymentStatusPending
		}
		if slot != nil {
			a.SlotID = &slot.ID
		}
		if err := appts.Create(ctx, a); err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}
		if slot != nil {
			if err := slots.SetBooked(ctx, slot.ID, true); err != nil {
				return fmt.Errorf("mark slot booked: %w", err)
			}
		}
		if err := events.Record(ctx, model.EventTypeAppointmentCreated, &a.ID, a.Code); err != nil {
			return fmt.Errorf("record event: %w", err)
		}
		appt = a
		return nil
	})
	return appt, err
}

// validateSlotModel проверяет, что слот свободен и целиком покрывает [start, end).
func validateSlotModel(slot *model.AvailabilitySlot, start, end time.Time) (bool, string) {
	if slot == nil {
		return false, "no free slot covers the requested time"
	}
	if !slot.EndsAt.After(slot.StartsAt) {
		return false, "invalid slot time range"
	}
	if slot.Booked {
		return false, "slot is already booked"
	}
	if !calendar.Covers(
		calendar.TimeRange{Start: slot.StartsAt, End: slot.EndsAt},
		calendar.TimeRange{Start: start, End: end},
	) {
		return false, "slot does not cover the requested time"
	}
	return true, ""
}

func (s *ReservationService) formatRange(start, end time.Time) string {
	loc := s.hours.Location()
	return start.In(loc).Format("2006-01-02 15:04") + "–" + end.In(loc).Format("15:04")
}

func (s *ReservationService) Get(ctx context.Context, id string) (*model.Appointment, error) {
	a, err := s.appts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("appointment %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return a, nil
}

// GetByCode возвращает запись с провайдером и клиентом.
func (s *ReservationService) GetByCode(ctx context.Context, code string) (*model.Appointment, error) {
	a, err := s.appts.GetByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("appointment %s: %w", code, ErrNotFound)
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return a, nil
}

// ListByProvider - записи провайдера, начинающиеся в [from, to), постранично.
func (s *ReservationService) ListByProvider(
	ctx context.Context,
	providerID string,
	from, to time.Time,
	page, pageSize int,
) (calendar.Page[model.Appointment], error) {
	if providerID == "" {
		return calendar.Page[model.Appointment]{}, validationf("provider_id is required")
	}
	if !to.After(from) {
		return calendar.Page[model.Appointment]{}, validationf("end must be after start")
	}
	list, err := s.appts.ListByProviderRange(ctx, providerID, from.UTC(), to.UTC())
	if err != nil {
		return calendar.Page[model.Appointment]{}, fmt.Errorf("list appointments: %w", err)
	}
	return calendar.Paginate(list, page, pageSize), nil
}

// UpdateStatus переводит запись в новый статус; отмена освобождает слот.
func (s *ReservationService) UpdateStatus(ctx context.Context, id string, to model.AppointmentStatus) (*model.Appointment, error) {
	if !to.Valid() {
		return nil, validationf("unknown status %q", to)
	}

	var appt *model.Appointment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		appts := repository.NewGormAppointmentRepository(tx)
		slots := repository.NewGormSlotRepository(tx)
		events := repository.NewGormEventRepository(tx)

		a, err := appts.LockByID(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("appointment %s: %w", id, ErrNotFound)
			}
			return fmt.Errorf("lock appointment: %w", err)
		}
		if !canTransition(a.Status, to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, to)
		}

		var cancelledAt *time.Time
		if to == model.AppointmentStatusCancelled {
			now := s.now().UTC()
			cancelledAt = &now
			a.CancelledAt = cancelledAt
		}
		if err := appts.UpdateStatus(ctx, a.ID, to, cancelledAt); err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		if to == model.AppointmentStatusCancelled && a.SlotID != nil {
			if err := slots.SetBooked(ctx, *a.SlotID, false); err != nil {
				return fmt.Errorf("free slot: %w", err)
			}
		}
		if err := events.Record(ctx, model.EventTypeAppointmentStatusChanged, &a.ID, string(a.Status)+"->"+string(to)); err != nil {
			return fmt.Errorf("record event: %w", err)
		}
		a.Status = to
		appt = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("appointment status changed", zap.String("code", appt.Code), zap.String("status", string(to)))
	return appt, nil
}

// Delete удаляет запись вместе с заданиями напоминаний и освобождает слот.
func (s *ReservationService) Delete(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		appts := repository.NewGormAppointmentRepository(tx)
		slots := repository.NewGormSlotRepository(tx)
		reminders := repository.NewGormReminderRepository(tx)
		events := repository.NewGormEventRepository(tx)

		a, err := appts.LockByID(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("appointment %s: %w", id, ErrNotFound)
			}
			return fmt.Errorf("lock appointment: %w", err)
		}
		if err := reminders.DeleteByAppointment(ctx, a.ID); err != nil {
			return fmt.Errorf("delete reminder jobs: %w", err)
		}
		if a.SlotID != nil {
			if err := slots.SetBooked(ctx, *a.SlotID, false); err != nil {
				return fmt.Errorf("free slot: %w", err)
			}
		}
		if err := appts.Delete(ctx, a.ID); err != nil {
			return fmt.Errorf("delete appointment: %w", err)
		}
		return events.Record(ctx, model.EventTypeAppointmentDeleted, &a.ID, a.Code)
	})
	if err != nil {
		return err
	}
	s.log.Info("appointment deleted", zap.String("id", id))
	return nil
}

// ApplyPaymentResult применяет асинхронный результат оплаты по ссылке: коду записи
// или ORD-<uuid> для заказа. Повторное событие ничего не меняет; applied=false.
func (s *ReservationService) ApplyPaymentResult(ctx context.Context, reference string, result model.PaymentStatus) (bool, error) {
	if result != model.PaymentStatusPaid && result != model.PaymentStatusFailed {
		return false, validationf("unsupported payment result %q", result)
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return false, validationf("reference is required")
	}

	if orderID, ok := model.OrderIDFromReference(reference); ok {
		n, err := repository.NewGormIntakeRepository(s.db).ApplyOrderPayment(ctx, orderID, result)
		if err != nil {
			return false, fmt.Errorf("apply order payment: %w", err)
		}
		return n > 0, nil
	}

	applied := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		appts := repository.NewGormAppointmentRepository(tx)
		events := repository.NewGormEventRepository(tx)

		a, err := appts.LockByCode(ctx, reference)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("appointment %s: %w", reference, ErrNotFound)
			}
			return fmt.Errorf("lock appointment: %w", err)
		}
		if a.PaymentStatus != model.PaymentStatusPending {
			return nil
		}

		var status *model.AppointmentStatus
		if result == model.PaymentStatusPaid && a.Status == model.AppointmentStatusPendingPayment {
			confirmed := model.AppointmentStatusConfirmed
			status = &confirmed
		}
		n, err := appts.ApplyPayment(ctx, a.ID, result, status)
		if err != nil {
			return fmt.Errorf("apply payment: %w", err)
		}
		if n == 0 {
			return nil
		}
		applied = true
		return events.Record(ctx, model.EventTypePaymentUpdated, &a.ID, string(result))
	})
	if err != nil {
		return false, err
	}
	if applied {
		s.log.Info("payment applied", zap.String("reference", reference), zap.String("result", string(result)))
	}
	return applied, nil
}
