package dialogue

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Leganyst/counseling-booking/internal/calendar"
	"github.com/Leganyst/counseling-booking/internal/model"
	"github.com/Leganyst/counseling-booking/internal/payment"
	"github.com/Leganyst/counseling-booking/internal/repository"
	"github.com/Leganyst/counseling-booking/internal/service"
)

type Reserver interface {
	Reserve(ctx context.Context, req service.ReserveRequest) (*model.Appointment, error)
}

type ProviderDirectory interface {
	ListProviders(ctx context.Context) ([]model.Provider, error)
}

type ClientRegistry interface {
	EnsureClient(ctx context.Context, externalID string, contacts repository.UserContacts) (*model.Client, error)
	FindClient(ctx context.Context, externalID string) (*model.Client, error)
}

type IntakeSubmitter interface {
	SubmitSupport(ctx context.Context, req *model.SupportRequest) error
	SubmitMentorship(ctx context.Context, req *model.MentorshipRequest) error
	PlaceBookOrder(ctx context.Context, order *model.BookOrder, unitPriceCents int64) error
	CheckReviewable(ctx context.Context, client *model.Client, code string) (*model.Appointment, error)
	SubmitReview(ctx context.Context, client *model.Client, code string, rating int, comment string) (*model.Review, error)
}

// Deps - зависимости анкет.
type Deps struct {
	Hours    *calendar.WorkingHours
	Duration time.Duration

	SessionFeeCents int64
	BookPriceCents  int64

	Reserver  Reserver
	Providers ProviderDirectory
	Clients   ClientRegistry
	Intake    IntakeSubmitter
	// Payments обязателен, если SessionFeeCents или BookPriceCents > 0.
	Payments payment.Gateway

	Now func() time.Time
	Log *zap.Logger
}

// Forms собирает все анкеты.
func Forms(d Deps) []*Form {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return []*Form{
		bookingForm(d),
		supportForm(d),
		mentorshipForm(d),
		bookOrderForm(d),
		reviewForm(d),
	}
}

// initiatePayment запускает оплату и возвращает строку для пользователя.
func initiatePayment(ctx context.Context, d Deps, reference string, amountCents int64, phone string) string {
	if d.Payments == nil {
		d.Log.Error("payment gateway is not configured", zap.String("reference", reference))
		return msgPaymentFailed
	}
	state, err := d.Payments.Initiate(ctx, reference, amountCents, phone)
	if err != nil || state == payment.StateFailed {
		d.Log.Error("initiate payment", zap.String("reference", reference), zap.Error(err))
		return msgPaymentFailed
	}
	return formatPaymentPending(amountCents)
}
