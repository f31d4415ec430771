package messaging

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/Leganyst/counseling-booking/internal/mq"
)

// InboundConsumer читает message.inbound и передаёт события обработчику последовательно.
type InboundConsumer struct {
	src     mq.DeliverySource
	handler Handler
	log     *zap.Logger
}

func NewInboundConsumer(src mq.DeliverySource, handler Handler, log *zap.Logger) *InboundConsumer {
	return &InboundConsumer{src: src, handler: handler, log: log}
}

// Run блокируется до отмены ctx или закрытия канала доставок.
func (c *InboundConsumer) Run(ctx context.Context) error {
	msgs, err := c.src.Deliveries(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return nil
			}
			c.handle(ctx, d)
		}
	}
}

func (c *InboundConsumer) handle(ctx context.Context, d amqp.Delivery) {
	var in Inbound
	if _, err := mq.Decode(d.Body, &in); err != nil {
		c.log.Warn("drop malformed inbound message", zap.Error(err))
		_ = d.Nack(false, false)
		return
	}
	if in.UserID == "" {
		c.log.Warn("drop inbound message without user_id")
		_ = d.Ack(false)
		return
	}
	if err := c.handler.Dispatch(ctx, in); err != nil {
		// ошибка уже сообщена пользователю; повтор привёл бы к дублю ответа
		c.log.Error("dispatch inbound message", zap.String("user_id", in.UserID), zap.Error(err))
	}
	_ = d.Ack(false)
}
