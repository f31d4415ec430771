package payment

import (
	"context"
	"errors"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/Leganyst/counseling-booking/internal/model"
	"github.com/Leganyst/counseling-booking/internal/mq"
	"github.com/Leganyst/counseling-booking/internal/service"
)

type paymentResult struct {
	Reference string `json:"reference"`
	PaymentID string `json:"payment_id"`
}

// Applier применяет результат оплаты; повторное применение - no-op.
type Applier interface {
	ApplyPaymentResult(ctx context.Context, reference string, result model.PaymentStatus) (bool, error)
}

type Consumer struct {
	src     mq.DeliverySource
	applier Applier
	log     *zap.Logger
}

func NewConsumer(src mq.DeliverySource, applier Applier, log *zap.Logger) *Consumer {
	return &Consumer{src: src, applier: applier, log: log}
}

func (c *Consumer) Run(ctx context.Context) error {
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

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	var result model.PaymentStatus
	switch d.RoutingKey {
	case RoutingPaid:
		result = model.PaymentStatusPaid
	case RoutingFailed:
		result = model.PaymentStatusFailed
	default:
		// ignore others
		_ = d.Ack(false)
		return
	}

	var evt paymentResult
	if _, err := mq.Decode(d.Body, &evt); err != nil {
		c.log.Warn("drop malformed payment event", zap.Error(err))
		_ = d.Nack(false, false)
		return
	}
	if evt.Reference == "" {
		c.log.Warn("payment event without reference", zap.String("payment_id", evt.PaymentID))
		_ = d.Ack(false)
		return
	}

	applied, err := c.applier.ApplyPaymentResult(ctx, evt.Reference, result)
	if err != nil {
		var verr *service.ValidationError
		if errors.Is(err, service.ErrNotFound) || errors.As(err, &verr) {
			c.log.Warn("payment event for unknown reference",
				zap.String("reference", evt.Reference), zap.Error(err))
			_ = d.Ack(false)
			return
		}
		c.log.Error("apply payment result", zap.String("reference", evt.Reference), zap.Error(err))
		_ = d.Nack(false, true)
		return
	}
	c.log.Info("payment event processed",
		zap.String("reference", evt.Reference),
		zap.String("payment_id", evt.PaymentID),
		zap.String("result", string(result)),
		zap.Bool("applied", applied),
	)
	_ = d.Ack(false)
}
