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
	"gorm.io/gorm"

	"github.com/Leganyst/counseling-booking/internal/calendar"
	"github.com/Leganyst/counseling-booking/internal/model"
	"github.com/Leganyst/counseling-booking/internal/repository"
)

// Окно генерации слотов за один вызов.
const maxGenerateWindow = 62 * 24 * time.Hour

// CalendarService - справочник провайдеров, их расписания, слоты и дни отсутствия.
type CalendarService struct {
	providerRepo repository.ProviderRepository
	slotRepo     repository.SlotRepository
	scheduleRepo repository.ScheduleRepository
	absenceRepo  repository.AbsenceRepository
	hours        *calendar.WorkingHours
	log          *zap.Logger
}

func NewCalendarService(
	providerRepo repository.ProviderRepository,
	slotRepo repository.SlotRepository,
	scheduleRepo repository.ScheduleRepository,
	absenceRepo repository.AbsenceRepository,
	hours *calendar.WorkingHours,
	log *zap.Logger,
) *CalendarService {
	return &CalendarService{
		providerRepo: providerRepo,
		slotRepo:     slotRepo,
		scheduleRepo: scheduleRepo,
		absenceRepo:  absenceRepo,
		hours:        hours,
		log:          log,
	}
}

func (s *CalendarService) ListProviders(ctx context.Context) ([]model.Provider, error) {
	list, err := s.providerRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	return list, nil
}

func (s *CalendarService) GetProvider(ctx context.Context, id string) (*model.Provider, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, validationf("invalid provider_id")
	}
	p, err := s.providerRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("provider %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get provider: %w", err)
	}
	return p, nil
}

func (s *CalendarService) CreateProvider(ctx context.Context, displayName, description string) (*model.Provider, error) {
	displayName = strings.TrimSpace(displayName)
	if len([]rune(displayName)) < 2 {
		return nil, validationf("display_name must be at least 2 characters")
	}
	p := &model.Provider{DisplayName: displayName, Description: strings.TrimSpace(description)}
	if err := s.providerRepo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create provider: %w", err)
	}
	return p, nil
}

// AddAbsence отмечает день, в который провайдер не принимает. date - YYYY-MM-DD в поясе бизнеса.
func (s *CalendarService) AddAbsence(ctx context.Context, providerID, date, reason string) (*model.AbsenceDay, error) {
	p, err := s.GetProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}
	d, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(date), s.hours.Location())
	if err != nil {
		return nil, validationf("date must be in YYYY-MM-DD format")
	}
	a := &model.AbsenceDay{
		ProviderID: p.ID,
		Date:       model.DateOf(d, s.hours.Location()),
		Reason:     reason,
	}
	if err := s.absenceRepo.Create(ctx, a); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, conflictf("absence on %s is already recorded", date)
		}
		return nil, fmt.Errorf("create absence: %w", err)
	}
	return a, nil
}

// AddSlot объявляет окно доступности; окно должно лежать в рабочем времени.
func (s *CalendarService) AddSlot(ctx context.Context, providerID string, start, end time.Time) (*model.AvailabilitySlot, error) {
	p, err := s.GetProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}
	if ok, reason := s.hours.IsValidRange(start, end); !ok {
		return nil, &ValidationError{Reason: reason}
	}
	dayStart := time.Time(model.DateOf(start, s.hours.Location()))
	existing, err := s.slotRepo.ListByProviderRange(ctx, providerID, dayStart.Add(-24*time.Hour), dayStart.Add(48*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	ranges := make([]calendar.TimeRange, 0, len(existing))
	for _, e := range existing {
		ranges = append(ranges, calendar.TimeRange{Start: e.StartsAt, End: e.EndsAt})
	}
	if overlap, _ := calendar.HasOverlap(calendar.TimeRange{Start: start, End: end}, ranges); overlap {
		return nil, conflictf("slot overlaps an existing slot")
	}

	slot := &model.AvailabilitySlot{ProviderID: p.ID, StartsAt: start.UTC(), EndsAt: end.UTC()}
	if err := s.slotRepo.Create(ctx, slot); err != nil {
		return nil, fmt.Errorf("create slot: %w", err)
	}
	return slot, nil
}

// ListSlots - слоты провайдера, лежащие в [from, to).
func (s *CalendarService) ListSlots(ctx context.Context, providerID string, from, to time.Time) ([]model.AvailabilitySlot, error) {
	if providerID == "" {
		return nil, validationf("provider_id is required")
	}
	if !to.After(from) {
		return nil, validationf("end must be after start")
	}
	slots, err := s.slotRepo.ListByProviderRange(ctx, providerID, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	return slots, nil
}

// AddSchedule сохраняет правило повторения провайдера.
func (s *CalendarService) AddSchedule(
	ctx context.Context,
	providerID string,
	rule model.ScheduleRule,
	startDate, endDate *time.Time,
) (*model.Schedule, error) {
	p, err := s.GetProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}
	if ok, reason := validateScheduleRule(rule); !ok {
		return nil, &ValidationError{Reason: reason}
	}
	raw, err := json.Marshal(rule)
	if err != nil {
		return nil, fmt.Errorf("marshal rule: %w", err)
	}
	sch := &model.Schedule{ProviderID: p.ID, Rules: raw}
	if startDate != nil {
		d := model.DateOf(*startDate, s.hours.Location())
		sch.StartDate = &d
	}
	if endDate != nil {
		d := model.DateOf(*endDate, s.hours.Location())
		sch.EndDate = &d
	}
	if err := s.scheduleRepo.Create(ctx, sch); err != nil {
		return nil, fmt.Errorf("create schedule: %w", err)
	}
	return sch, nil
}

func validateScheduleRule(rule model.ScheduleRule) (bool, string) {
	if len(rule.Weekdays) == 0 {
		return false, "at least one weekday is required"
	}
	if rule.SlotMinutes <= 0 {
		return false, "slot_minutes must be positive"
	}
	start, err1 := parseClock(rule.StartTime)
	end, err2 := parseClock(rule.EndTime)
	if err1 != nil || err2 != nil {
		return false, "start_time and end_time must be in HH:MM format"
	}
	if end <= start {
		return false, "end_time must be after start_time"
	}
	return true, ""
}

// parseClock переводит "HH:MM" в смещение от начала дня.
func parseClock(v string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(v))
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// GenerateSlots разворачивает расписания провайдера в слоты внутри window.
// Слоты вне рабочего времени, на днях отсутствия и уже существующие пропускаются.
// Возвращает созданные слоты.
func (s *CalendarService) GenerateSlots(ctx context.Context, providerID string, window calendar.TimeRange) ([]model.AvailabilitySlot, error) {
	p, err := s.GetProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}
	loc := s.hours.Location()
	window, err = calendar.NormalizeTimeRange(window.Start, window.End, loc, maxGenerateWindow)
	if err != nil {
		return nil, validationf("invalid window: %v", err)
	}

	schedules, err := s.scheduleRepo.ListByProvider(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}

	absences, err := s.absenceRepo.ListBetween(ctx, p.ID, model.DateOf(window.Start, loc), model.DateOf(window.End, loc))
	if err != nil {
		return nil, fmt.Errorf("list absences: %w", err)
	}
	// ключи - полночь в поясе провайдера, как их сравнивает ExpandRecurringRule
	exceptions := make(map[time.Time]struct{}, len(absences))
	for _, a := range absences {
		y, m, d := time.Time(a.Date).Date()
		exceptions[time.Date(y, m, d, 0, 0, 0, 0, loc)] = struct{}{}
	}

	var created []model.AvailabilitySlot
	for _, sch := range schedules {
		var rule model.ScheduleRule
		if err := json.Unmarshal(sch.Rules, &rule); err != nil {
			s.log.Warn("skip schedule with broken rule", zap.String("schedule_id", sch.ID.String()), zap.Error(err))
			continue
		}
		ranges, err := expandSchedule(sch, rule, window, loc, exceptions)
		if err != nil {
			return nil, err
		}

		for _, r := range ranges {
			slots, err := calendar.SplitToTimeSlots(r, time.Duration(rule.SlotMinutes)*time.Minute, 0)
			if err != nil {
				return nil, validationf("split schedule: %v", err)
			}
			for _, sr := range slots {
				if sr.Start.Before(window.Start) || sr.End.After(window.End) {
					continue
				}
				if ok, _ := s.hours.IsValidRange(sr.Start, sr.End); !ok {
					continue
				}
				start, end := sr.Start.UTC(), sr.End.UTC()
				exists, err := s.slotRepo.Exists(ctx, p.ID, start, end)
				if err != nil {
					return nil, fmt.Errorf("check slot: %w", err)
				}
				if exists {
					continue
				}
				scheduleID := sch.ID
				slot := model.AvailabilitySlot{
					ScheduleID: &scheduleID,
					ProviderID: p.ID,
					StartsAt:   start,
					EndsAt:     end,
				}
				if err := s.slotRepo.Create(ctx, &slot); err != nil {
					return nil, fmt.Errorf("create slot: %w", err)
				}
				created = append(created, slot)
			}
		}
	}

	s.log.Info("slots generated", zap.String("provider_id", providerID), zap.Int("created", len(created)))
	return created, nil
}

// expandSchedule превращает сохранённое правило в рабочие окна внутри window.
// Дни из exceptions пропускаются целиком.
func expandSchedule(sch model.Schedule, rule model.ScheduleRule, window calendar.TimeRange, loc *time.Location, exceptions map[time.Time]struct{}) ([]calendar.TimeRange, error) {
	from, err := parseClock(rule.StartTime)
	if err != nil {
		return nil, validationf("schedule %s: bad start_time", sch.ID)
	}
	to, err := parseClock(rule.EndTime)
	if err != nil {
		return nil, validationf("schedule %s: bad end_time", sch.ID)
	}

	first := window.Start.In(loc)
	if sch.StartDate != nil {
		sd := time.Time(*sch.StartDate)
		if d := time.Date(sd.Year(), sd.Month(), sd.Day(), 0, 0, 0, 0, loc); d.After(first) {
			first = d
		}
	}
	day := time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, loc)

	rr := calendar.RecurringRule{
		Freq:      calendar.FreqWeekly,
		Interval:  1,
		Weekdays:  rule.Weekdays,
		StartTime: day.Add(from),
		Duration:  to - from,

		Exceptions: exceptions,
	}
	if sch.EndDate != nil {
		ed := time.Time(*sch.EndDate)
		until := time.Date(ed.Year(), ed.Month(), ed.Day(), 23, 59, 59, 0, loc)
		rr.Until = &until
	}
	return calendar.ExpandRecurringRule(rr, window)
}
