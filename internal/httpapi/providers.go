package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Leganyst/counseling-booking/internal/calendar"
	"github.com/Leganyst/counseling-booking/internal/model"
)

const (
	defaultPageSize = 20
	dateLayout      = "2006-01-02"
)

type providerHandler struct {
	svc   Calendar
	appts Appointments
	loc   *time.Location
	log   *zap.Logger
}

// GET /providers
func (h *providerHandler) List(c *gin.Context) {
	list, err := h.svc.ListProviders(c.Request.Context())
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	out := make([]providerDTO, 0, len(list))
	for i := range list {
		out = append(out, toProviderDTO(&list[i]))
	}
	c.JSON(http.StatusOK, out)
}

// POST /providers
func (h *providerHandler) Create(c *gin.Context) {
	var in struct {
		DisplayName string `json:"display_name" binding:"required"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	p, err := h.svc.CreateProvider(c.Request.Context(), in.DisplayName, in.Description)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, toProviderDTO(p))
}

// GET /providers/:id
func (h *providerHandler) Get(c *gin.Context) {
	p, err := h.svc.GetProvider(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, toProviderDTO(p))
}

// GET /providers/:id/appointments?from=RFC3339&to=RFC3339&page=1&page_size=20
func (h *providerHandler) Appointments(c *gin.Context) {
	from, to, ok := h.rangeQuery(c)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(defaultPageSize)))

	res, err := h.appts.ListByProvider(c.Request.Context(), c.Param("id"), from, to, page, size)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	items := make([]appointmentDTO, 0, len(res.Items))
	for i := range res.Items {
		items = append(items, toAppointmentDTO(&res.Items[i]))
	}
	c.JSON(http.StatusOK, pageDTO[appointmentDTO]{
		Items:    items,
		Page:     res.Page,
		PageSize: res.PageSize,
		Total:    res.Total,
		HasNext:  res.HasNext,
		HasPrev:  res.HasPrev,
	})
}

// POST /providers/:id/absences {"date": "2030-01-07", "reason": "..."}
func (h *providerHandler) AddAbsence(c *gin.Context) {
	var in struct {
		Date   string `json:"date" binding:"required"`
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	a, err := h.svc.AddAbsence(c.Request.Context(), c.Param("id"), in.Date, in.Reason)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":          a.ID.String(),
		"provider_id": a.ProviderID.String(),
		"date":        in.Date,
		"reason":      a.Reason,
	})
}

// GET /providers/:id/slots?from=RFC3339&to=RFC3339
func (h *providerHandler) ListSlots(c *gin.Context) {
	from, to, ok := h.rangeQuery(c)
	if !ok {
		return
	}
	slots, err := h.svc.ListSlots(c.Request.Context(), c.Param("id"), from, to)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, toSlotDTOs(slots))
}

// POST /providers/:id/slots {"start": RFC3339, "end": RFC3339}
func (h *providerHandler) AddSlot(c *gin.Context) {
	var in struct {
		Start time.Time `json:"start" binding:"required"`
		End   time.Time `json:"end" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	s, err := h.svc.AddSlot(c.Request.Context(), c.Param("id"), in.Start, in.End)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, toSlotDTOs([]model.AvailabilitySlot{*s})[0])
}

// POST /providers/:id/slots/generate {"from": RFC3339, "to": RFC3339}
func (h *providerHandler) GenerateSlots(c *gin.Context) {
	var in struct {
		From time.Time `json:"from" binding:"required"`
		To   time.Time `json:"to" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	slots, err := h.svc.GenerateSlots(c.Request.Context(), c.Param("id"), calendar.TimeRange{Start: in.From, End: in.To})
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"created": len(slots), "slots": toSlotDTOs(slots)})
}

// POST /providers/:id/schedules {"rule": {...}, "start_date": "2030-01-01", "end_date": "2030-03-01"}
func (h *providerHandler) AddSchedule(c *gin.Context) {
	var in struct {
		Rule      model.ScheduleRule `json:"rule"`
		StartDate string             `json:"start_date"`
		EndDate   string             `json:"end_date"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	start, err := h.optionalDate(in.StartDate)
	if err != nil {
		badRequest(c, "start_date must be YYYY-MM-DD")
		return
	}
	end, err := h.optionalDate(in.EndDate)
	if err != nil {
		badRequest(c, "end_date must be YYYY-MM-DD")
		return
	}
	sch, err := h.svc.AddSchedule(c.Request.Context(), c.Param("id"), in.Rule, start, end)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":          sch.ID.String(),
		"provider_id": sch.ProviderID.String(),
		"rule":        in.Rule,
		"start_date":  in.StartDate,
		"end_date":    in.EndDate,
	})
}

// rangeQuery читает обязательные from/to в RFC 3339.
func (h *providerHandler) rangeQuery(c *gin.Context) (time.Time, time.Time, bool) {
	from, err := time.Parse(time.RFC3339, c.Query("from"))
	if err != nil {
		badRequest(c, "from must be an RFC 3339 timestamp")
		return time.Time{}, time.Time{}, false
	}
	to, err := time.Parse(time.RFC3339, c.Query("to"))
	if err != nil {
		badRequest(c, "to must be an RFC 3339 timestamp")
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

func (h *providerHandler) optionalDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := time.ParseInLocation(dateLayout, raw, h.loc)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
