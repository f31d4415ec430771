package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Leganyst/counseling-booking/internal/messaging"
	"github.com/Leganyst/counseling-booking/internal/service"
	"github.com/Leganyst/counseling-booking/internal/session"
)

const (
	fieldCode    = "code"
	fieldRating  = "rating"
	fieldComment = "comment"

	ratingAction = "rating:"
	noComment    = "-"
)

func reviewForm(d Deps) *Form {
	return &Form{
		Flow:  session.FlowReview,
		Intro: "Let's leave a review of your session.",
		Steps: []Step{
			{Field: fieldCode, Prompt: staticPrompt("Please send the code of your appointment."), Validate: reviewableCode(d)},
			{Field: fieldRating, Prompt: choicePrompt("How would you rate the session?", ratingButtons()...), Validate: intRange(1, 5, "Rating", ratingAction)},
			{Field: fieldComment, Prompt: staticPrompt("Any comments? Send \"-\" to skip."), Validate: reviewComment},
		},
		Summary: func(_ context.Context, s *session.Session) (string, error) {
			comment := s.Fields[fieldComment]
			if comment == "" {
				comment = "(none)"
			}
			return fmt.Sprintf("Please check your review:\nAppointment: %s\nRating: %s/5\nComment: %s",
				s.Fields[fieldCode], s.Fields[fieldRating], comment), nil
		},
		Complete: func(ctx context.Context, s *session.Session) ([]string, error) {
			rating, err := strconv.Atoi(s.Fields[fieldRating])
			if err != nil {
				return nil, fmt.Errorf("stored rating %q: %w", s.Fields[fieldRating], err)
			}
			client, err := d.Clients.FindClient(ctx, s.UserID)
			if err != nil {
				return nil, err
			}
			if _, err := d.Intake.SubmitReview(ctx, client, s.Fields[fieldCode], rating, s.Fields[fieldComment]); err != nil {
				if reason, ok := service.Reason(err); ok {
					return nil, &StepError{Field: fieldCode, Reason: upperFirst(reason) + "."}
				}
				if errors.Is(err, service.ErrNotFound) {
					return nil, &StepError{Field: fieldCode, Reason: "Appointment not found."}
				}
				return nil, err
			}
			return []string{"Thank you for your feedback!"}, nil
		},
	}
}

// reviewableCode принимает код записи пользователя, по которой ещё нет отзыва.
func reviewableCode(d Deps) validator {
	return func(ctx context.Context, s *session.Session, input string) (string, error) {
		code := strings.ToUpper(strings.TrimSpace(input))
		if code == "" {
			return "", invalid("Please send the appointment code.")
		}
		client, err := d.Clients.FindClient(ctx, s.UserID)
		if errors.Is(err, service.ErrNotFound) {
			return "", invalid("We could not find any appointments for you.")
		}
		if err != nil {
			return "", err
		}
		if _, err := d.Intake.CheckReviewable(ctx, client, code); err != nil {
			if errors.Is(err, service.ErrNotFound) {
				return "", invalid("Appointment %s not found.", code)
			}
			if reason, ok := service.Reason(err); ok {
				return "", invalid("%s.", upperFirst(reason))
			}
			return "", err
		}
		return code, nil
	}
}

func reviewComment(_ context.Context, _ *session.Session, input string) (string, error) {
	v := strings.TrimSpace(input)
	if v == noComment {
		return "", nil
	}
	return v, nil
}

func ratingButtons() []messaging.Button {
	out := make([]messaging.Button, 0, 5)
	for i := 1; i <= 5; i++ {
		n := strconv.Itoa(i)
		out = append(out, messaging.Button{Text: n, ActionID: ratingAction + n})
	}
	return out
}
