package dialogue

import (
	"context"
	"fmt"

	"github.com/Leganyst/counseling-booking/internal/messaging"
	"github.com/Leganyst/counseling-booking/internal/session"
)

// Имя терминального шага подтверждения.
const stepConfirm = "confirm"

// Prompt - текст шага и необязательная клавиатура.
type Prompt struct {
	Text     string
	Keyboard [][]messaging.Button
}

// Step - один вопрос анкеты. Validate возвращает нормализованное значение поля
// или *InputError с причиной для пользователя; прочие ошибки считаются внутренними.
type Step struct {
	Field    string
	Prompt   func(ctx context.Context, s *session.Session) (Prompt, error)
	Validate func(ctx context.Context, s *session.Session, input string) (string, error)
}

// Form - упорядоченный список шагов и действие по подтверждению.
type Form struct {
	Flow  session.FlowType
	Intro string
	Steps []Step

	// Summary перечисляет собранные поля перед подтверждением.
	Summary func(ctx context.Context, s *session.Session) (string, error)

	// Complete выполняется после явного подтверждения. *StepError возвращает пользователя
	// к шагу; *InputError оставляет его на подтверждении.
	Complete func(ctx context.Context, s *session.Session) ([]string, error)
}

// InputError - некорректный ответ; шаг повторяется с Reason.
type InputError struct {
	Reason string
}

func (e *InputError) Error() string { return e.Reason }

func invalid(format string, args ...any) error {
	return &InputError{Reason: fmt.Sprintf(format, args...)}
}

// StepError возвращает анкету к шагу Field с объяснением Reason.
type StepError struct {
	Field  string
	Reason string
}

func (e *StepError) Error() string { return e.Field + ": " + e.Reason }

func (f *Form) stepIndex(field string) int {
	for i, st := range f.Steps {
		if st.Field == field {
			return i
		}
	}
	return -1
}

// nextUnanswered - первый шаг начиная с from, чьё поле ещё не собрано; -1, если все собраны.
// После возврата к шагу уже заполненные поля не спрашиваются заново.
func (f *Form) nextUnanswered(s *session.Session, from int) int {
	for i := from; i < len(f.Steps); i++ {
		if _, ok := s.Fields[f.Steps[i].Field]; !ok {
			return i
		}
	}
	return -1
}

func staticPrompt(text string) func(context.Context, *session.Session) (Prompt, error) {
	return func(context.Context, *session.Session) (Prompt, error) {
		return Prompt{Text: text}, nil
	}
}

func choicePrompt(text string, buttons ...messaging.Button) func(context.Context, *session.Session) (Prompt, error) {
	return func(context.Context, *session.Session) (Prompt, error) {
		return Prompt{Text: text, Keyboard: [][]messaging.Button{buttons}}, nil
	}
}
