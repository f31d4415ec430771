package calendar

import (
	"errors"
	"time"
)

type RecurrenceFrequency int

const (
	FreqDaily RecurrenceFrequency = iota
	FreqWeekly
)

type RecurringRule struct {
	Freq      RecurrenceFrequency
	Interval  int            // шаг: каждые Interval дней/недель (>=1)
	Weekdays  []time.Weekday // фильтр по дням недели (если пуст - все дни)
	StartTime time.Time      // начало первого вхождения
	Duration  time.Duration  // длительность вхождения
	Until     *time.Time     // опционально: дата/время окончания
	// Исключения по датам (используем дату без времени).
	Exceptions map[time.Time]struct{}
}

// ExpandRecurringRule разворачивает правило повторений в набор интервалов
// внутри окна window. Интервалы, полностью лежащие вне window, отбрасываются.
func ExpandRecurringRule(rule RecurringRule, window TimeRange) ([]TimeRange, error) {
	if rule.Duration <= 0 {
		return nil, errors.New("recurring rule: duration must be positive")
	}
	if rule.Interval <= 0 {
		rule.Interval = 1
	}
	if rule.StartTime.IsZero() {
		return nil, errors.New("recurring rule: StartTime is required")
	}
	if !window.End.After(window.Start) {
		return []TimeRange{}, nil
	}

	var result []TimeRange

	// Weekly с фильтром дней удобнее разворачивать по дням, иначе пропустим будни.
	step := func(cur time.Time) time.Time {
		if rule.Freq == FreqWeekly && len(rule.Weekdays) > 0 {
			return cur.AddDate(0, 0, 1)
		}
		return nextOccurrence(rule, cur)
	}

	for cur := rule.StartTime; ; cur = step(cur) {
		if rule.Until != nil && cur.After(*rule.Until) {
			break
		}
		if cur.After(window.End) {
			// Дальнейшие повторения точно будут дальше окна.
			break
		}

		if len(rule.Weekdays) > 0 && !containsWeekday(rule.Weekdays, cur.Weekday()) {
			continue
		}
		if rule.Freq == FreqWeekly && len(rule.Weekdays) > 0 && rule.Interval > 1 {
			weeks := int(dateOnly(cur).Sub(dateOnly(rule.StartTime)).Hours() / 24 / 7)
			if weeks%rule.Interval != 0 {
				continue
			}
		}
		if isException(rule, cur) {
			continue
		}

		occ := TimeRange{Start: cur, End: cur.Add(rule.Duration)}
		if Overlaps(occ, window) {
			result = append(result, occ)
		}
	}

	return result, nil
}

func nextOccurrence(rule RecurringRule, cur time.Time) time.Time {
	switch rule.Freq {
	case FreqWeekly:
		return cur.AddDate(0, 0, 7*rule.Interval)
	default:
		return cur.AddDate(0, 0, rule.Interval)
	}
}

func containsWeekday(list []time.Weekday, w time.Weekday) bool {
	for _, d := range list {
		if d == w {
			return true
		}
	}
	return false
}

func isException(rule RecurringRule, t time.Time) bool {
	if rule.Exceptions == nil {
		return false
	}
	_, ok := rule.Exceptions[dateOnly(t)]
	return ok
}
