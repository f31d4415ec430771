package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/Leganyst/counseling-booking/internal/calendar"
	"github.com/Leganyst/counseling-booking/internal/messaging"
	"github.com/Leganyst/counseling-booking/internal/model"
	"github.com/Leganyst/counseling-booking/internal/repository"
	"github.com/Leganyst/counseling-booking/internal/service"
	"github.com/Leganyst/counseling-booking/internal/session"
)

const (
	fieldName        = "name"
	fieldDateOfBirth = "date_of_birth"
	fieldPhone       = "phone"
	fieldProvider    = "provider"
	fieldDateTime    = "datetime"
	fieldTopic       = "topic"

	providerAction = "provider:"
)

func bookingForm(d Deps) *Form {
	return &Form{
		Flow:  session.FlowBooking,
		Intro: "Let's book a counseling session.",
		Steps: []Step{
			{Field: fieldName, Prompt: staticPrompt("What is your full name?"), Validate: minLength(2, "Name")},
			{Field: fieldDateOfBirth, Prompt: staticPrompt("What is your date of birth? (YYYY-MM-DD)"), Validate: dateOfBirth(d.Now)},
			{Field: fieldPhone, Prompt: staticPrompt("What is your phone number? (e.g. +79991234567)"), Validate: validatePhone},
			{Field: fieldProvider, Prompt: providerPrompt(d), Validate: providerChoice(d)},
			{
				Field: fieldDateTime,
				Prompt: staticPrompt(fmt.Sprintf(
					"When would you like to come? Send the date and time as YYYY-MM-DD HH:MM (%s). A session lasts %d minutes.",
					d.Hours.Location(), int(d.Duration.Minutes()))),
				Validate: appointmentTime(d.Hours, d.Duration, d.Now),
			},
			{Field: fieldTopic, Prompt: staticPrompt("Briefly, what would you like to discuss?"), Validate: minLength(3, "Topic")},
		},
		Summary:  bookingSummary(d),
		Complete: completeBooking(d),
	}
}

func providerPrompt(d Deps) func(context.Context, *session.Session) (Prompt, error) {
	return func(ctx context.Context, _ *session.Session) (Prompt, error) {
		providers, err := d.Providers.ListProviders(ctx)
		if err != nil {
			return Prompt{}, err
		}
		if len(providers) == 0 {
			return Prompt{Text: "No counselors are accepting bookings right now. Send \"cancel\" to stop."}, nil
		}
		var b strings.Builder
		b.WriteString("Choose a counselor (tap a button or send the number):")
		kb := make([][]messaging.Button, 0, len(providers))
		for i, p := range providers {
			fmt.Fprintf(&b, "\n%d. %s", i+1, p.DisplayName)
			if p.Description != "" {
				b.WriteString(": " + p.Description)
			}
			kb = append(kb, []messaging.Button{{Text: p.DisplayName, ActionID: providerAction + p.ID.String()}})
		}
		return Prompt{Text: b.String(), Keyboard: kb}, nil
	}
}

// providerChoice принимает "provider:<id>" или номер из списка.
func providerChoice(d Deps) validator {
	return func(ctx context.Context, _ *session.Session, input string) (string, error) {
		providers, err := d.Providers.ListProviders(ctx)
		if err != nil {
			return "", err
		}
		v := strings.TrimSpace(input)
		if id, ok := strings.CutPrefix(v, providerAction); ok {
			for _, p := range providers {
				if p.ID.String() == id {
					return id, nil
				}
			}
		} else if n, err := strconv.Atoi(v); err == nil && n >= 1 && n <= len(providers) {
			return providers[n-1].ID.String(), nil
		}
		return "", invalid("Please choose a counselor from the list.")
	}
}

func providerName(ctx context.Context, d Deps, id string) (string, error) {
	providers, err := d.Providers.ListProviders(ctx)
	if err != nil {
		return "", err
	}
	for _, p := range providers {
		if p.ID.String() == id {
			return p.DisplayName, nil
		}
	}
	return "unknown counselor", nil
}

func bookingRange(d Deps, s *session.Session) (calendar.TimeRange, error) {
	start, err := time.Parse(time.RFC3339, s.Fields[fieldDateTime])
	if err != nil {
		return calendar.TimeRange{}, fmt.Errorf("stored datetime %q: %w", s.Fields[fieldDateTime], err)
	}
	return calendar.TimeRange{Start: start, End: start.Add(d.Duration)}, nil
}

func bookingSummary(d Deps) func(context.Context, *session.Session) (string, error) {
	return func(ctx context.Context, s *session.Session) (string, error) {
		name, err := providerName(ctx, d, s.Fields[fieldProvider])
		if err != nil {
			return "", err
		}
		tr, err := bookingRange(d, s)
		if err != nil {
			return "", err
		}
		text := fmt.Sprintf("Please check your booking:\nName: %s\nDate of birth: %s\nPhone: %s\nCounselor: %s\nWhen: %s\nTopic: %s",
			s.Fields[fieldName], s.Fields[fieldDateOfBirth], s.Fields[fieldPhone], name,
			calendar.FormatSlotForUser(tr, d.Hours.Location(), false, ""), s.Fields[fieldTopic])
		if d.SessionFeeCents > 0 {
			text += fmt.Sprintf("\nFee: %d.%02d", d.SessionFeeCents/100, d.SessionFeeCents%100)
		}
		return text, nil
	}
}

func completeBooking(d Deps) func(context.Context, *session.Session) ([]string, error) {
	return func(ctx context.Context, s *session.Session) ([]string, error) {
		tr, err := bookingRange(d, s)
		if err != nil {
			return nil, err
		}
		// время могло пройти, пока пользователь подтверждал
		if !tr.Start.After(d.Now()) {
			return nil, &StepError{Field: fieldDateTime, Reason: "That time has already passed. Please choose another time."}
		}

		contacts := repository.UserContacts{
			DisplayName:  s.Fields[fieldName],
			ContactPhone: s.Fields[fieldPhone],
		}
		if dob, err := time.Parse(dateLayout, s.Fields[fieldDateOfBirth]); err == nil {
			date := datatypes.Date(dob)
			contacts.DateOfBirth = &date
		}
		client, err := d.Clients.EnsureClient(ctx, s.UserID, contacts)
		if err != nil {
			return nil, fmt.Errorf("ensure client: %w", err)
		}

		a, err := d.Reserver.Reserve(ctx, service.ReserveRequest{
			ProviderID:  s.Fields[fieldProvider],
			ClientID:    &client.ID,
			Start:       tr.Start,
			End:         tr.End,
			AmountCents: d.SessionFeeCents,
			Intake: map[string]string{
				fieldName:  s.Fields[fieldName],
				fieldPhone: s.Fields[fieldPhone],
				fieldTopic: s.Fields[fieldTopic],
			},
		})
		if err != nil {
			if reason, ok := service.Reason(err); ok {
				return nil, &StepError{Field: fieldDateTime, Reason: upperFirst(reason)}
			}
			if errors.Is(err, service.ErrNotFound) {
				return nil, &StepError{Field: fieldProvider, Reason: "This counselor is no longer available. Please choose another one."}
			}
			return nil, err
		}

		name, err := providerName(ctx, d, a.ProviderID.String())
		if err != nil {
			d.Log.Warn("provider name lookup", zap.Error(err))
		}
		texts := []string{fmt.Sprintf(
			"Your appointment is booked!\nCode: %s\nCounselor: %s\nWhen: %s\nWe will remind you a day and an hour before.",
			a.Code, name, calendar.FormatSlotForUser(tr, d.Hours.Location(), false, ""))}
		if a.Status == model.AppointmentStatusPendingPayment {
			texts = append(texts, initiatePayment(ctx, d, a.Code, a.AmountCents, s.Fields[fieldPhone]))
		}
		return texts, nil
	}
}
