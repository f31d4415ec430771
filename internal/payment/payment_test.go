package payment

import (
	"context"
	"errors"
	"fmt"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/Leganyst/counseling-booking/internal/model"
	"github.com/Leganyst/counseling-booking/internal/service"
)

type fakePublisher struct {
	key  string
	data any
	err  error
}

func (f *fakePublisher) PublishEvent(_ context.Context, key string, data any) error {
	f.key, f.data = key, data
	return f.err
}

func TestAMQPGateway_Initiate(t *testing.T) {
	pub := &fakePublisher{}
	g := NewAMQPGateway(pub)

	state, err := g.Initiate(context.Background(), "ABC234", 150000, "+79991234567")
	if err != nil || state != StatePending {
		t.Fatalf("expected pending, got %s %v", state, err)
	}
	req, ok := pub.data.(paymentRequested)
	if pub.key != RoutingRequested || !ok || req.Reference != "ABC234" || req.AmountCents != 150000 {
		t.Fatalf("unexpected publish %s %+v", pub.key, pub.data)
	}

	pub.err = errors.New("broker down")
	if state, _ := g.Initiate(context.Background(), "ABC234", 100, ""); state != StateFailed {
		t.Fatalf("expected failed on publish error, got %s", state)
	}
	if state, _ := g.Initiate(context.Background(), "ABC234", 0, ""); state != StateFailed {
		t.Fatalf("expected failed for zero amount, got %s", state)
	}
}

type fakeApplier struct {
	calls []string
	err   error
}

func (f *fakeApplier) ApplyPaymentResult(_ context.Context, reference string, result model.PaymentStatus) (bool, error) {
	f.calls = append(f.calls, reference+":"+string(result))
	return f.err == nil, f.err
}

type chanSource struct {
	ch chan amqp.Delivery
}

func (s *chanSource) Deliveries(context.Context) (<-chan amqp.Delivery, error) {
	return s.ch, nil
}

func event(key, ref string) amqp.Delivery {
	body := fmt.Sprintf(`{"event":%q,"version":1,"data":{"reference":%q,"payment_id":"p-1"}}`, key, ref)
	return amqp.Delivery{RoutingKey: key, Body: []byte(body)}
}

func TestConsumer_RoutesResults(t *testing.T) {
	src := &chanSource{ch: make(chan amqp.Delivery, 4)}
	src.ch <- event(RoutingPaid, "ABC234")
	src.ch <- event(RoutingFailed, "ORD-1")
	src.ch <- event("payment.refunded", "XYZ")
	src.ch <- event(RoutingPaid, "")
	close(src.ch)

	applier := &fakeApplier{}
	if err := NewConsumer(src, applier, zap.NewNop()).Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	want := []string{"ABC234:paid", "ORD-1:failed"}
	if len(applier.calls) != len(want) {
		t.Fatalf("expected %v, got %v", want, applier.calls)
	}
	for i := range want {
		if applier.calls[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, applier.calls)
		}
	}
}

func TestConsumer_UnknownReferenceIsAcked(t *testing.T) {
	src := &chanSource{ch: make(chan amqp.Delivery, 1)}
	src.ch <- event(RoutingPaid, "NOPE22")
	close(src.ch)

	applier := &fakeApplier{err: fmt.Errorf("appointment NOPE22: %w", service.ErrNotFound)}
	if err := NewConsumer(src, applier, zap.NewNop()).Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(applier.calls) != 1 {
		t.Fatalf("expected one apply call, got %v", applier.calls)
	}
}
