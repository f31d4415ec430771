package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Leganyst/counseling-booking/internal/model"
	"github.com/Leganyst/counseling-booking/internal/repository"
)

const maxBookQuantity = 20

// IntakeService сохраняет заявки диалогов: поддержка, наставничество, заказ книг, отзывы.
type IntakeService struct {
	intakeRepo repository.IntakeRepository
	apptRepo   repository.AppointmentRepository
	log        *zap.Logger
}

func NewIntakeService(intakeRepo repository.IntakeRepository, apptRepo repository.AppointmentRepository, log *zap.Logger) *IntakeService {
	return &IntakeService{intakeRepo: intakeRepo, apptRepo: apptRepo, log: log}
}

func (s *IntakeService) SubmitSupport(ctx context.Context, req *model.SupportRequest) error {
	if err := s.intakeRepo.CreateSupportRequest(ctx, req); err != nil {
		return fmt.Errorf("create support request: %w", err)
	}
	s.log.Info("support request submitted", zap.String("id", req.ID.String()))
	return nil
}

func (s *IntakeService) SubmitMentorship(ctx context.Context, req *model.MentorshipRequest) error {
	if err := s.intakeRepo.CreateMentorshipRequest(ctx, req); err != nil {
		return fmt.Errorf("create mentorship request: %w", err)
	}
	s.log.Info("mentorship request submitted", zap.String("id", req.ID.String()))
	return nil
}

// PlaceBookOrder сохраняет заказ; при ненулевой цене оплата ожидается асинхронно.
func (s *IntakeService) PlaceBookOrder(ctx context.Context, order *model.BookOrder, unitPriceCents int64) error {
	if order.Quantity < 1 || order.Quantity > maxBookQuantity {
		return validationf("quantity must be between 1 and %d", maxBookQuantity)
	}
	order.TotalCents = unitPriceCents * int64(order.Quantity)
	order.PaymentStatus = model.PaymentStatusNotRequired
	if order.TotalCents > 0 {
		order.PaymentStatus = model.PaymentStatusPending
	}
	if err := s.intakeRepo.CreateBookOrder(ctx, order); err != nil {
		return fmt.Errorf("create book order: %w", err)
	}
	s.log.Info("book order placed", zap.String("reference", order.Reference()), zap.Int64("total_cents", order.TotalCents))
	return nil
}

// CheckReviewable проверяет, что клиент может оставить отзыв на запись с кодом code.
func (s *IntakeService) CheckReviewable(ctx context.Context, client *model.Client, code string) (*model.Appointment, error) {
	a, err := s.apptRepo.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, validationf("no appointment with code %s", code)
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	if client == nil || a.ClientID == nil || *a.ClientID != client.ID {
		return nil, validationf("appointment %s does not belong to you", code)
	}
	if a.Status != model.AppointmentStatusConfirmed && a.Status != model.AppointmentStatusCompleted {
		return nil, validationf("only confirmed or completed appointments can be reviewed")
	}
	exists, err := s.intakeRepo.ReviewExists(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("check review: %w", err)
	}
	if exists {
		return nil, conflictf("appointment %s has already been reviewed", code)
	}
	return a, nil
}

func (s *IntakeService) SubmitReview(ctx context.Context, client *model.Client, code string, rating int, comment string) (*model.Review, error) {
	if rating < 1 || rating > 5 {
		return nil, validationf("rating must be between 1 and 5")
	}
	a, err := s.CheckReviewable(ctx, client, code)
	if err != nil {
		return nil, err
	}
	r := &model.Review{AppointmentID: a.ID, ClientID: client.ID, Rating: rating, Comment: comment}
	if err := s.intakeRepo.CreateReview(ctx, r); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, conflictf("appointment %s has already been reviewed", code)
		}
		return nil, fmt.Errorf("create review: %w", err)
	}
	return r, nil
}
