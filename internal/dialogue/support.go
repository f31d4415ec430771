package dialogue

import (
	"context"
	"fmt"

	"github.com/Leganyst/counseling-booking/internal/messaging"
	"github.com/Leganyst/counseling-booking/internal/model"
	"github.com/Leganyst/counseling-booking/internal/repository"
	"github.com/Leganyst/counseling-booking/internal/session"
)

const (
	fieldMessage = "message"
	fieldArea    = "field"
	fieldLevel   = "level"
	fieldGoals   = "goals"

	levelAction = "level:"
)

var mentorshipLevels = []string{"beginner", "intermediate", "advanced"}

func supportForm(d Deps) *Form {
	return &Form{
		Flow:  session.FlowSupport,
		Intro: "Let's send a message to our support team.",
		Steps: []Step{
			{Field: fieldName, Prompt: staticPrompt("What is your name?"), Validate: minLength(2, "Name")},
			{Field: fieldPhone, Prompt: staticPrompt("What phone number can we reach you at? (e.g. +79991234567)"), Validate: validatePhone},
			{Field: fieldMessage, Prompt: staticPrompt("How can we help? Please describe your question."), Validate: minLength(10, "Message")},
		},
		Summary: func(_ context.Context, s *session.Session) (string, error) {
			return fmt.Sprintf("Please check your request:\nName: %s\nPhone: %s\nMessage: %s",
				s.Fields[fieldName], s.Fields[fieldPhone], s.Fields[fieldMessage]), nil
		},
		Complete: func(ctx context.Context, s *session.Session) ([]string, error) {
			client, err := ensureContact(ctx, d, s)
			if err != nil {
				return nil, err
			}
			err = d.Intake.SubmitSupport(ctx, &model.SupportRequest{
				ClientID: client.ID,
				Name:     s.Fields[fieldName],
				Phone:    s.Fields[fieldPhone],
				Message:  s.Fields[fieldMessage],
			})
			if err != nil {
				return nil, err
			}
			return []string{"Thank you! Your request has been sent, we will get back to you soon."}, nil
		},
	}
}

func mentorshipForm(d Deps) *Form {
	buttons := levelButtons()
	return &Form{
		Flow:  session.FlowMentorship,
		Intro: "Let's sign you up for mentorship.",
		Steps: []Step{
			{Field: fieldName, Prompt: staticPrompt("What is your name?"), Validate: minLength(2, "Name")},
			{Field: fieldPhone, Prompt: staticPrompt("What phone number can we reach you at? (e.g. +79991234567)"), Validate: validatePhone},
			{Field: fieldArea, Prompt: staticPrompt("Which field would you like mentorship in?"), Validate: minLength(2, "Field")},
			{Field: fieldLevel, Prompt: choicePrompt("What is your current level?", buttons...), Validate: oneOf("Level", levelAction, mentorshipLevels...)},
			{Field: fieldGoals, Prompt: staticPrompt("What would you like to achieve?"), Validate: minLength(10, "Goals")},
		},
		Summary: func(_ context.Context, s *session.Session) (string, error) {
			return fmt.Sprintf("Please check your application:\nName: %s\nPhone: %s\nField: %s\nLevel: %s\nGoals: %s",
				s.Fields[fieldName], s.Fields[fieldPhone], s.Fields[fieldArea], s.Fields[fieldLevel], s.Fields[fieldGoals]), nil
		},
		Complete: func(ctx context.Context, s *session.Session) ([]string, error) {
			client, err := ensureContact(ctx, d, s)
			if err != nil {
				return nil, err
			}
			err = d.Intake.SubmitMentorship(ctx, &model.MentorshipRequest{
				ClientID: client.ID,
				Name:     s.Fields[fieldName],
				Phone:    s.Fields[fieldPhone],
				Field:    s.Fields[fieldArea],
				Level:    s.Fields[fieldLevel],
				Goals:    s.Fields[fieldGoals],
			})
			if err != nil {
				return nil, err
			}
			return []string{"Thank you! Your mentorship application has been received."}, nil
		},
	}
}

func levelButtons() []messaging.Button {
	out := make([]messaging.Button, 0, len(mentorshipLevels))
	for _, l := range mentorshipLevels {
		out = append(out, messaging.Button{Text: upperFirst(l), ActionID: levelAction + l})
	}
	return out
}

// ensureContact регистрирует клиента по имени и телефону из анкеты.
func ensureContact(ctx context.Context, d Deps, s *session.Session) (*model.Client, error) {
	client, err := d.Clients.EnsureClient(ctx, s.UserID, repository.UserContacts{
		DisplayName:  s.Fields[fieldName],
		ContactPhone: s.Fields[fieldPhone],
	})
	if err != nil {
		return nil, fmt.Errorf("ensure client: %w", err)
	}
	return client, nil
}
