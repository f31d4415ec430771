package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Leganyst/counseling-booking/internal/model"
	"github.com/Leganyst/counseling-booking/internal/service"
)

type appointmentHandler struct {
	svc Appointments
	log *zap.Logger
}

// POST /appointments
func (h *appointmentHandler) Create(c *gin.Context) {
	var in struct {
		ProviderID  string            `json:"provider_id" binding:"required"`
		ClientID    string            `json:"client_id"`
		Start       time.Time         `json:"start" binding:"required"` // RFC3339
		End         time.Time         `json:"end" binding:"required"`   // RFC3339
		AmountCents int64             `json:"amount_cents"`
		Intake      map[string]string `json:"intake"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	req := service.ReserveRequest{
		ProviderID:  in.ProviderID,
		Start:       in.Start,
		End:         in.End,
		AmountCents: in.AmountCents,
		Intake:      in.Intake,
	}
	if in.ClientID != "" {
		id, err := uuid.Parse(in.ClientID)
		if err != nil {
			badRequest(c, "invalid client_id")
			return
		}
		req.ClientID = &id
	}

	a, err := h.svc.Reserve(c.Request.Context(), req)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, toAppointmentDTO(a))
}

// GET /appointments/:id
func (h *appointmentHandler) Get(c *gin.Context) {
	a, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, toAppointmentDTO(a))
}

// GET /appointments/code/:code
func (h *appointmentHandler) GetByCode(c *gin.Context) {
	a, err := h.svc.GetByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, toAppointmentDTO(a))
}

// PATCH /appointments/:id/status {"status": "confirmed"}
func (h *appointmentHandler) UpdateStatus(c *gin.Context) {
	var in struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	a, err := h.svc.UpdateStatus(c.Request.Context(), c.Param("id"), model.AppointmentStatus(in.Status))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, toAppointmentDTO(a))
}

// DELETE /appointments/:id
func (h *appointmentHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}
