// Package messaging - граница с внешним каналом сообщений. Диалог не знает транспорта.
package messaging

import "context"

const (
	RoutingOutbound = "message.outbound"
	RoutingInbound  = "message.inbound"
)

type Button struct {
	Text     string `json:"text"`
	ActionID string `json:"action_id"`
}

// Inbound - событие от пользователя: текст или нажатая кнопка.
type Inbound struct {
	UserID   string `json:"user_id"`
	Text     string `json:"text"`
	ActionID string `json:"action_id,omitempty"`
}

type Outgoing struct {
	UserID   string     `json:"user_id"`
	Text     string     `json:"text"`
	Keyboard [][]Button `json:"keyboard,omitempty"`

	// Если задан, канал заменяет это сообщение вместо отправки нового.
	ReplaceMessageID string `json:"replace_message_id,omitempty"`
}

// Messenger отправляет сообщение и возвращает его идентификатор в канале.
type Messenger interface {
	Send(ctx context.Context, msg Outgoing) (string, error)
}

// Handler обрабатывает входящие события по одному.
type Handler interface {
	Dispatch(ctx context.Context, in Inbound) error
}
