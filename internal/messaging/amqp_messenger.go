package messaging

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Leganyst/counseling-booking/internal/mq"
)

// outboundMessage - то, что получает адаптер канала.
type outboundMessage struct {
	MessageID string `json:"message_id"`
	Outgoing
}

// AMQPMessenger публикует исходящие сообщения в message.outbound.
// ID сообщения назначается здесь; адаптер канала хранит соответствие со своим ID.
type AMQPMessenger struct {
	pub mq.EventPublisher
}

func NewAMQPMessenger(pub mq.EventPublisher) *AMQPMessenger {
	return &AMQPMessenger{pub: pub}
}

func (m *AMQPMessenger) Send(ctx context.Context, msg Outgoing) (string, error) {
	id := uuid.NewString()
	if err := m.pub.PublishEvent(ctx, RoutingOutbound, outboundMessage{MessageID: id, Outgoing: msg}); err != nil {
		return "", fmt.Errorf("publish outbound message: %w", err)
	}
	return id, nil
}
