package httpapi

import (
	"time"

	"github.com/Leganyst/counseling-booking/internal/model"
)

type appointmentDTO struct {
	ID            string     `json:"id"`
	Code          string     `json:"code"`
	ProviderID    string     `json:"provider_id"`
	ClientID      string     `json:"client_id,omitempty"`
	SlotID        string     `json:"slot_id,omitempty"`
	Start         time.Time  `json:"start"`
	End           time.Time  `json:"end"`
	Status        string     `json:"status"`
	PaymentStatus string     `json:"payment_status"`
	AmountCents   int64      `json:"amount_cents"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func toAppointmentDTO(a *model.Appointment) appointmentDTO {
	out := appointmentDTO{
		ID:            a.ID.String(),
		Code:          a.Code,
		ProviderID:    a.ProviderID.String(),
		Start:         a.StartsAt.UTC(),
		End:           a.EndsAt.UTC(),
		Status:        string(a.Status),
		PaymentStatus: string(a.PaymentStatus),
		AmountCents:   a.AmountCents,
		CancelledAt:   a.CancelledAt,
		CreatedAt:     a.CreatedAt,
	}
	if a.ClientID != nil {
		out.ClientID = a.ClientID.String()
	}
	if a.SlotID != nil {
		out.SlotID = a.SlotID.String()
	}
	return out
}

type providerDTO struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Description string `json:"description,omitempty"`
}

func toProviderDTO(p *model.Provider) providerDTO {
	return providerDTO{ID: p.ID.String(), DisplayName: p.DisplayName, Description: p.Description}
}

type slotDTO struct {
	ID         string    `json:"id"`
	ProviderID string    `json:"provider_id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Booked     bool      `json:"booked"`
}

func toSlotDTOs(slots []model.AvailabilitySlot) []slotDTO {
	out := make([]slotDTO, 0, len(slots))
	for _, s := range slots {
		out = append(out, slotDTO{
			ID:         s.ID.String(),
			ProviderID: s.ProviderID.String(),
			Start:      s.StartsAt.UTC(),
			End:        s.EndsAt.UTC(),
			Booked:     s.Booked,
		})
	}
	return out
}

type pageDTO[T any] struct {
	Items    []T  `json:"items"`
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	Total    int  `json:"total"`
	HasNext  bool `json:"has_next"`
	HasPrev  bool `json:"has_prev"`
}
