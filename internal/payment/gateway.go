// Package payment - граница с платёжным шлюзом: запрос оплаты и асинхронные результаты.
package payment

import (
	"context"
	"fmt"

	"github.com/Leganyst/counseling-booking/internal/mq"
)

const (
	RoutingRequested = "payment.requested"
	RoutingPaid      = "payment.paid"
	RoutingFailed    = "payment.failed"
)

type State string

const (
	StatePending State = "pending"
	StateFailed  State = "failed"
)

// Gateway инициирует оплату. Итог приходит позже событием payment.paid / payment.failed.
type Gateway interface {
	Initiate(ctx context.Context, reference string, amountCents int64, phone string) (State, error)
}

type paymentRequested struct {
	Reference   string `json:"reference"`
	AmountCents int64  `json:"amount_cents"`
	Phone       string `json:"phone"`
}

// AMQPGateway публикует payment.requested для платёжного сервиса.
type AMQPGateway struct {
	pub mq.EventPublisher
}

func NewAMQPGateway(pub mq.EventPublisher) *AMQPGateway {
	return &AMQPGateway{pub: pub}
}

func (g *AMQPGateway) Initiate(ctx context.Context, reference string, amountCents int64, phone string) (State, error) {
	if reference == "" || amountCents <= 0 {
		return StateFailed, fmt.Errorf("invalid payment request %q/%d", reference, amountCents)
	}
	err := g.pub.PublishEvent(ctx, RoutingRequested, paymentRequested{
		Reference:   reference,
		AmountCents: amountCents,
		Phone:       phone,
	})
	if err != nil {
		return StateFailed, fmt.Errorf("publish payment request: %w", err)
	}
	return StatePending, nil
}
