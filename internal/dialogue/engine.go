// Package dialogue ведёт пошаговые анкеты пользователей: запись на приём, поддержка,
// наставничество, заказ книг и отзывы.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Leganyst/counseling-booking/internal/messaging"
	"github.com/Leganyst/counseling-booking/internal/session"
)

var (
	cancelTokens      = map[string]bool{"no": true, "cancel": true, "/cancel": true, "stop": true}
	affirmativeTokens = map[string]bool{"yes": true, "y": true, "confirm": true}
	menuTokens        = map[string]bool{"/start": true, "/help": true, "menu": true}

	triggers = map[string]session.FlowType{
		"/book":       session.FlowBooking,
		"/support":    session.FlowSupport,
		"/mentorship": session.FlowMentorship,
		"/order":      session.FlowBookOrder,
		"/review":     session.FlowReview,
	}
)

const (
	actionConfirm = "confirm"
	actionCancel  = "cancel"
	flowAction    = "flow:"
)

var confirmKeyboard = [][]messaging.Button{{
	{Text: "Confirm", ActionID: actionConfirm},
	{Text: "Cancel", ActionID: actionCancel},
}}

// Engine ведёт анкеты. Handle - чистый переход состояния, Dispatch добавляет
// загрузку и сохранение сессии и отправку сообщений.
type Engine struct {
	sessions  session.Repository
	messenger messaging.Messenger
	forms     map[session.FlowType]*Form
	log       *zap.Logger
}

func NewEngine(sessions session.Repository, messenger messaging.Messenger, forms []*Form, log *zap.Logger) *Engine {
	byFlow := make(map[session.FlowType]*Form, len(forms))
	for _, f := range forms {
		byFlow[f.Flow] = f
	}
	return &Engine{sessions: sessions, messenger: messenger, forms: byFlow, log: log}
}

// Dispatch обрабатывает одно входящее событие пользователя.
func (e *Engine) Dispatch(ctx context.Context, in messaging.Inbound) error {
	sess, err := e.sessions.Get(ctx, in.UserID)
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		return fmt.Errorf("load session: %w", err)
	}

	next, out, handleErr := e.Handle(ctx, sess, in)

	lastID := ""
	for i, msg := range out {
		if i == 0 && sess != nil {
			msg.ReplaceMessageID = sess.LastMessageID
		}
		id, err := e.messenger.Send(ctx, msg)
		if err != nil {
			e.log.Error("send message", zap.String("user_id", in.UserID), zap.Error(err))
			continue
		}
		lastID = id
	}

	if next == nil {
		if sess != nil {
			if err := e.sessions.Clear(ctx, in.UserID); err != nil {
				return fmt.Errorf("clear session: %w", err)
			}
		}
	} else {
		next.LastMessageID = lastID
		if err := e.sessions.Set(ctx, next); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
	}
	return handleErr
}

// Handle выполняет один шаг анкеты. Возвращает новое состояние (nil - сессия завершена)
// и исходящие сообщения. Входная сессия не изменяется.
func (e *Engine) Handle(ctx context.Context, sess *session.Session, in messaging.Inbound) (*session.Session, []messaging.Outgoing, error) {
	input := strings.TrimSpace(in.Text)
	token := strings.ToLower(input)
	if in.ActionID != "" {
		token = strings.ToLower(in.ActionID)
	}

	reply := func(texts ...string) []messaging.Outgoing {
		out := make([]messaging.Outgoing, 0, len(texts))
		for _, t := range texts {
			out = append(out, messaging.Outgoing{UserID: in.UserID, Text: t})
		}
		return out
	}

	if flow, ok := e.trigger(token); ok {
		return e.start(ctx, in.UserID, flow)
	}
	if menuTokens[token] {
		return sess, []messaging.Outgoing{e.menu(in.UserID)}, nil
	}
	if sess == nil {
		if cancelTokens[token] || token == actionCancel {
			return nil, reply(msgNothingToCancel), nil
		}
		return nil, []messaging.Outgoing{e.menu(in.UserID)}, nil
	}
	form, ok := e.forms[sess.Flow]
	if !ok {
		e.log.Warn("session for unknown flow dropped", zap.String("flow", string(sess.Flow)))
		return nil, []messaging.Outgoing{e.menu(in.UserID)}, nil
	}

	// отмена сильнее любой валидации
	if cancelTokens[token] || token == actionCancel {
		return nil, reply(msgCancelled), nil
	}

	if sess.Step == stepConfirm {
		return e.confirm(ctx, form, sess, in.UserID, token)
	}

	value := input
	if in.ActionID != "" {
		value = in.ActionID
	}
	idx := form.stepIndex(sess.Step)
	if idx < 0 {
		// шаг пропал после изменения анкеты; начинаем заново
		return e.start(ctx, in.UserID, sess.Flow)
	}
	step := form.Steps[idx]

	normalized, err := step.Validate(ctx, sess, value)
	if err != nil {
		var inputErr *InputError
		if errors.As(err, &inputErr) {
			msg, perr := e.prompt(ctx, form, sess, idx, inputErr.Reason)
			if perr != nil {
				return sess, reply(msgInternal), perr
			}
			return sess, []messaging.Outgoing{msg}, nil
		}
		return sess, reply(msgInternal), fmt.Errorf("validate %s.%s: %w", sess.Flow, step.Field, err)
	}

	next := sess.Clone()
	next.Fields[step.Field] = normalized
	if nextIdx := form.nextUnanswered(next, idx+1); nextIdx >= 0 {
		next.Step = form.Steps[nextIdx].Field
		msg, err := e.prompt(ctx, form, next, nextIdx, "")
		if err != nil {
			return sess, reply(msgInternal), err
		}
		return next, []messaging.Outgoing{msg}, nil
	}

	next.Step = stepConfirm
	msg, err := e.summary(ctx, form, next, "")
	if err != nil {
		return sess, reply(msgInternal), err
	}
	return next, []messaging.Outgoing{msg}, nil
}

func (e *Engine) trigger(token string) (session.FlowType, bool) {
	if flow, ok := triggers[token]; ok {
		return flow, true
	}
	if rest, ok := strings.CutPrefix(token, flowAction); ok {
		flow := session.FlowType(rest)
		_, known := e.forms[flow]
		return flow, known
	}
	return "", false
}

func (e *Engine) start(ctx context.Context, userID string, flow session.FlowType) (*session.Session, []messaging.Outgoing, error) {
	form, ok := e.forms[flow]
	if !ok || len(form.Steps) == 0 {
		return nil, []messaging.Outgoing{e.menu(userID)}, nil
	}
	next := &session.Session{
		UserID: userID,
		Flow:   flow,
		Step:   form.Steps[0].Field,
		Fields: map[string]string{},
	}
	msg, err := e.prompt(ctx, form, next, 0, "")
	if err != nil {
		return nil, []messaging.Outgoing{{UserID: userID, Text: msgInternal}}, err
	}
	if form.Intro != "" {
		msg.Text = form.Intro + "\n\n" + msg.Text
	}
	return next, []messaging.Outgoing{msg}, nil
}

func (e *Engine) prompt(ctx context.Context, form *Form, s *session.Session, idx int, reason string) (messaging.Outgoing, error) {
	p, err := form.Steps[idx].Prompt(ctx, s)
	if err != nil {
		return messaging.Outgoing{}, fmt.Errorf("prompt %s.%s: %w", form.Flow, form.Steps[idx].Field, err)
	}
	text := p.Text
	if reason != "" {
		text = reason + "\n\n" + text
	}
	return messaging.Outgoing{UserID: s.UserID, Text: text, Keyboard: p.Keyboard}, nil
}

func (e *Engine) summary(ctx context.Context, form *Form, s *session.Session, reason string) (messaging.Outgoing, error) {
	text, err := form.Summary(ctx, s)
	if err != nil {
		return messaging.Outgoing{}, fmt.Errorf("summary %s: %w", form.Flow, err)
	}
	text += "\n\n" + msgConfirmHint
	if reason != "" {
		text = reason + "\n\n" + text
	}
	return messaging.Outgoing{UserID: s.UserID, Text: text, Keyboard: confirmKeyboard}, nil
}

func (e *Engine) confirm(ctx context.Context, form *Form, sess *session.Session, userID, token string) (*session.Session, []messaging.Outgoing, error) {
	if !affirmativeTokens[token] {
		msg, err := e.summary(ctx, form, sess, msgConfirmRequired)
		if err != nil {
			return sess, []messaging.Outgoing{{UserID: userID, Text: msgInternal}}, err
		}
		return sess, []messaging.Outgoing{msg}, nil
	}

	texts, err := form.Complete(ctx, sess)
	if err == nil {
		out := make([]messaging.Outgoing, 0, len(texts))
		for _, t := range texts {
			out = append(out, messaging.Outgoing{UserID: userID, Text: t})
		}
		return nil, out, nil
	}

	var stepErr *StepError
	if errors.As(err, &stepErr) {
		idx := form.stepIndex(stepErr.Field)
		if idx >= 0 {
			next := sess.Clone()
			next.Step = stepErr.Field
			delete(next.Fields, stepErr.Field)
			msg, perr := e.prompt(ctx, form, next, idx, stepErr.Reason)
			if perr != nil {
				return sess, []messaging.Outgoing{{UserID: userID, Text: msgInternal}}, perr
			}
			return next, []messaging.Outgoing{msg}, nil
		}
	}
	var inputErr *InputError
	if errors.As(err, &inputErr) {
		msg, serr := e.summary(ctx, form, sess, inputErr.Reason)
		if serr != nil {
			return sess, []messaging.Outgoing{{UserID: userID, Text: msgInternal}}, serr
		}
		return sess, []messaging.Outgoing{msg}, nil
	}

	// сессия сохраняется: пользователь может повторить подтверждение
	return sess, []messaging.Outgoing{{UserID: userID, Text: msgInternal}}, fmt.Errorf("complete %s: %w", form.Flow, err)
}

func (e *Engine) menu(userID string) messaging.Outgoing {
	return messaging.Outgoing{
		UserID: userID,
		Text:   msgMenu,
		Keyboard: [][]messaging.Button{
			{{Text: "Book a session", ActionID: flowAction + string(session.FlowBooking)}},
			{{Text: "Support", ActionID: flowAction + string(session.FlowSupport)}},
			{{Text: "Mentorship", ActionID: flowAction + string(session.FlowMentorship)}},
			{{Text: "Order a book", ActionID: flowAction + string(session.FlowBookOrder)}},
			{{Text: "Leave a review", ActionID: flowAction + string(session.FlowReview)}},
		},
	}
}
