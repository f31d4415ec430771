package dialogue

import (
	"context"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Leganyst/counseling-booking/internal/calendar"
	"github.com/Leganyst/counseling-booking/internal/session"
)

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04"
	minPhoneDigits = 9
)

type validator func(ctx context.Context, s *session.Session, input string) (string, error)

// minLength проверяет длину в символах после обрезки пробелов.
func minLength(n int, what string) validator {
	return func(_ context.Context, _ *session.Session, input string) (string, error) {
		v := strings.TrimSpace(input)
		if utf8.RuneCountInString(v) < n {
			return "", invalid("%s must be at least %d characters long.", what, n)
		}
		return v, nil
	}
}

// validatePhone требует "+" с кодом страны и не меньше minPhoneDigits цифр.
// Пробелы, дефисы и скобки допускаются и отбрасываются.
func validatePhone(_ context.Context, _ *session.Session, input string) (string, error) {
	v := strings.TrimSpace(input)
	reason := invalid("Phone number must start with + and a country code and contain at least %d digits, e.g. +79991234567.", minPhoneDigits)
	if !strings.HasPrefix(v, "+") {
		return "", reason
	}
	var b strings.Builder
	b.WriteByte('+')
	for _, r := range v[1:] {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return "", reason
		}
	}
	if b.Len()-1 < minPhoneDigits {
		return "", reason
	}
	return b.String(), nil
}

func dateOfBirth(now func() time.Time) validator {
	return func(_ context.Context, _ *session.Session, input string) (string, error) {
		d, err := time.Parse(dateLayout, strings.TrimSpace(input))
		if err != nil {
			return "", invalid("Date of birth must be in YYYY-MM-DD format, e.g. 1995-04-12.")
		}
		if !d.Before(now()) {
			return "", invalid("Date of birth must be in the past.")
		}
		return d.Format(dateLayout), nil
	}
}

// appointmentTime разбирает "YYYY-MM-DD HH:MM" в поясе бизнеса и проверяет
// рабочее время для [t, t+duration). Значение хранится в RFC 3339.
func appointmentTime(hours *calendar.WorkingHours, duration time.Duration, now func() time.Time) validator {
	return func(_ context.Context, _ *session.Session, input string) (string, error) {
		t, err := time.ParseInLocation(dateTimeLayout, strings.TrimSpace(input), hours.Location())
		if err != nil {
			return "", invalid("Date and time must be in YYYY-MM-DD HH:MM format, e.g. 2030-01-07 14:00.")
		}
		if !t.After(now()) {
			return "", invalid("Please choose a time in the future.")
		}
		if ok, reason := hours.IsValidRange(t, t.Add(duration)); !ok {
			return "", invalid("%s.", upperFirst(reason))
		}
		return t.Format(time.RFC3339), nil
	}
}

// intRange принимает целое из [lo, hi], в том числе из действия вида "<prefix><n>".
func intRange(lo, hi int, what, prefix string) validator {
	return func(_ context.Context, _ *session.Session, input string) (string, error) {
		v := strings.TrimPrefix(strings.TrimSpace(input), prefix)
		n, err := strconv.Atoi(v)
		if err != nil || n < lo || n > hi {
			return "", invalid("%s must be a number from %d to %d.", what, lo, hi)
		}
		return strconv.Itoa(n), nil
	}
}

// oneOf принимает одно из значений без учёта регистра, в том числе из действия "<prefix><value>".
func oneOf(what, prefix string, options ...string) validator {
	return func(_ context.Context, _ *session.Session, input string) (string, error) {
		v := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(input), prefix))
		for _, o := range options {
			if v == o {
				return o, nil
			}
		}
		return "", invalid("%s must be one of: %s.", what, strings.Join(options, ", "))
	}
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return strings.ToUpper(string(r)) + s[size:]
}
