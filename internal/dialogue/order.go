package dialogue

import (
	"context"
	"fmt"
	"strconv"

	"github.com/Leganyst/counseling-booking/internal/model"
	"github.com/Leganyst/counseling-booking/internal/repository"
	"github.com/Leganyst/counseling-booking/internal/service"
	"github.com/Leganyst/counseling-booking/internal/session"
)

const (
	fieldTitle    = "title"
	fieldQuantity = "quantity"
	fieldAddress  = "address"

	maxOrderQuantity = 20
)

func bookOrderForm(d Deps) *Form {
	return &Form{
		Flow:  session.FlowBookOrder,
		Intro: "Let's order a book.",
		Steps: []Step{
			{Field: fieldTitle, Prompt: staticPrompt("Which book would you like to order?"), Validate: minLength(2, "Title")},
			{Field: fieldQuantity, Prompt: staticPrompt(fmt.Sprintf("How many copies? (1-%d)", maxOrderQuantity)), Validate: intRange(1, maxOrderQuantity, "Quantity", "")},
			{Field: fieldAddress, Prompt: staticPrompt("Where should we deliver the order?"), Validate: minLength(5, "Address")},
			{Field: fieldPhone, Prompt: staticPrompt("What phone number can we reach you at? (e.g. +79991234567)"), Validate: validatePhone},
		},
		Summary: func(_ context.Context, s *session.Session) (string, error) {
			text := fmt.Sprintf("Please check your order:\nBook: %s\nQuantity: %s\nAddress: %s\nPhone: %s",
				s.Fields[fieldTitle], s.Fields[fieldQuantity], s.Fields[fieldAddress], s.Fields[fieldPhone])
			if d.BookPriceCents > 0 {
				qty, _ := strconv.Atoi(s.Fields[fieldQuantity])
				total := d.BookPriceCents * int64(qty)
				text += fmt.Sprintf("\nTotal: %d.%02d", total/100, total%100)
			}
			return text, nil
		},
		Complete: func(ctx context.Context, s *session.Session) ([]string, error) {
			qty, err := strconv.Atoi(s.Fields[fieldQuantity])
			if err != nil {
				return nil, fmt.Errorf("stored quantity %q: %w", s.Fields[fieldQuantity], err)
			}
			client, err := d.Clients.EnsureClient(ctx, s.UserID, contactsFromPhone(s))
			if err != nil {
				return nil, fmt.Errorf("ensure client: %w", err)
			}
			order := &model.BookOrder{
				ClientID: client.ID,
				Title:    s.Fields[fieldTitle],
				Quantity: qty,
				Address:  s.Fields[fieldAddress],
				Phone:    s.Fields[fieldPhone],
			}
			if err := d.Intake.PlaceBookOrder(ctx, order, d.BookPriceCents); err != nil {
				if reason, ok := service.Reason(err); ok {
					return nil, &StepError{Field: fieldQuantity, Reason: upperFirst(reason) + "."}
				}
				return nil, err
			}
			texts := []string{fmt.Sprintf("Your order is placed! Reference: %s", order.Reference())}
			if order.PaymentStatus == model.PaymentStatusPending {
				texts = append(texts, initiatePayment(ctx, d, order.Reference(), order.TotalCents, order.Phone))
			}
			return texts, nil
		},
	}
}

func contactsFromPhone(s *session.Session) repository.UserContacts {
	return repository.UserContacts{ContactPhone: s.Fields[fieldPhone]}
}
