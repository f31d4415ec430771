// Package session хранит состояние диалога пользователя между входящими сообщениями.
package session

import (
	"context"
	"errors"
	"time"
)

type FlowType string

const (
	FlowBooking    FlowType = "booking"
	FlowSupport    FlowType = "support"
	FlowMentorship FlowType = "mentorship"
	FlowBookOrder  FlowType = "book-order"
	FlowReview     FlowType = "review"
)

// Priority - порядок, в котором ищется активная сессия пользователя.
var Priority = []FlowType{FlowSupport, FlowMentorship, FlowReview, FlowBookOrder, FlowBooking}

var ErrNotFound = errors.New("session not found")

// Session - состояние одной анкеты. У пользователя не больше одной активной сессии.
type Session struct {
	UserID string            `json:"user_id"`
	Flow   FlowType          `json:"flow"`
	Step   string            `json:"step"`
	Fields map[string]string `json:"fields"`

	// Последнее исходящее сообщение; следующий шаг его заменяет.
	LastMessageID string `json:"last_message_id,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Clone возвращает копию, не разделяющую Fields с оригиналом.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Fields = make(map[string]string, len(s.Fields))
	for k, v := range s.Fields {
		c.Fields[k] = v
	}
	return &c
}

// Repository - хранилище сессий по ID пользователя.
type Repository interface {
	// Get возвращает активную сессию пользователя или ErrNotFound.
	Get(ctx context.Context, userID string) (*Session, error)
	// Set сохраняет сессию и сбрасывает сессии пользователя в других потоках.
	Set(ctx context.Context, s *Session) error
	Clear(ctx context.Context, userID string) error
}
