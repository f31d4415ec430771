package calendar

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// WorkingHours - политика рабочего времени: часовой пояс, [StartHour, EndHour) и рабочие дни.
// Без состояния, безопасна для конкурентного использования.
type WorkingHours struct {
	loc       *time.Location
	startHour int
	endHour   int
	days      map[time.Weekday]struct{}
}

func NewWorkingHours(loc *time.Location, startHour, endHour int, days []time.Weekday) (*WorkingHours, error) {
	if loc == nil {
		loc = time.UTC
	}
	if startHour < 0 || endHour > 24 || startHour >= endHour {
		return nil, fmt.Errorf("invalid working hours %d..%d", startHour, endHour)
	}
	if len(days) == 0 {
		return nil, fmt.Errorf("at least one working day is required")
	}
	set := make(map[time.Weekday]struct{}, len(days))
	for _, d := range days {
		set[d] = struct{}{}
	}
	return &WorkingHours{loc: loc, startHour: startHour, endHour: endHour, days: set}, nil
}

func (p *WorkingHours) Location() *time.Location {
	return p.loc
}

// IsValidInstant проверяет, что t попадает в рабочий день и в [startHour, endHour).
func (p *WorkingHours) IsValidInstant(t time.Time) (bool, string) {
	local := t.In(p.loc)
	if _, ok := p.days[local.Weekday()]; !ok {
		return false, p.dayReason(local.Weekday())
	}
	minutes := local.Hour()*60 + local.Minute()
	if minutes < p.startHour*60 || minutes >= p.endHour*60 {
		return false, p.hoursReason()
	}
	return true, ""
}

// IsValidRange: end > start, обе границы в рабочем времени и в одну календарную дату.
// Конец может совпадать с концом рабочего дня.
func (p *WorkingHours) IsValidRange(start, end time.Time) (bool, string) {
	if !end.After(start) {
		return false, "end time must be after start time"
	}
	if ok, reason := p.IsValidInstant(start); !ok {
		return false, reason
	}

	ls, le := start.In(p.loc), end.In(p.loc)
	if !dateOnly(ls).Equal(dateOnly(le)) {
		return false, "an appointment must start and end on the same day"
	}
	if _, ok := p.days[le.Weekday()]; !ok {
		return false, p.dayReason(le.Weekday())
	}
	endMinutes := le.Hour()*60 + le.Minute()
	if endMinutes <= p.startHour*60 || le.Sub(dateOnly(le)) > time.Duration(p.endHour)*time.Hour {
		return false, p.hoursReason()
	}
	return true, ""
}

func (p *WorkingHours) hoursReason() string {
	return fmt.Sprintf("appointments are available between %02d:00 and %02d:00 (%s)", p.startHour, p.endHour, p.loc)
}

func (p *WorkingHours) dayReason(d time.Weekday) string {
	return fmt.Sprintf("%s is not a working day; we work on %s", d, p.workingDays())
}

func (p *WorkingHours) workingDays() string {
	days := make([]int, 0, len(p.days))
	for d := range p.days {
		// неделя с понедельника
		days = append(days, (int(d)+6)%7)
	}
	sort.Ints(days)
	names := make([]string, 0, len(days))
	for _, d := range days {
		names = append(names, time.Weekday((d + 1) % 7).String()[:3])
	}
	return strings.Join(names, ", ")
}
