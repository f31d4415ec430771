// Package httpapi - HTTP-поверхность сервиса: управление календарём и записями
// и вебхук входящих сообщений.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Leganyst/counseling-booking/internal/calendar"
	"github.com/Leganyst/counseling-booking/internal/messaging"
	"github.com/Leganyst/counseling-booking/internal/model"
	"github.com/Leganyst/counseling-booking/internal/service"
)

// Appointments - операции над записями.
type Appointments interface {
	Reserve(ctx context.Context, req service.ReserveRequest) (*model.Appointment, error)
	Get(ctx context.Context, id string) (*model.Appointment, error)
	GetByCode(ctx context.Context, code string) (*model.Appointment, error)
	ListByProvider(ctx context.Context, providerID string, from, to time.Time, page, pageSize int) (calendar.Page[model.Appointment], error)
	UpdateStatus(ctx context.Context, id string, to model.AppointmentStatus) (*model.Appointment, error)
	Delete(ctx context.Context, id string) error
}

// Calendar - провайдеры, отсутствия, слоты и расписания.
type Calendar interface {
	ListProviders(ctx context.Context) ([]model.Provider, error)
	GetProvider(ctx context.Context, id string) (*model.Provider, error)
	CreateProvider(ctx context.Context, displayName, description string) (*model.Provider, error)
	AddAbsence(ctx context.Context, providerID, date, reason string) (*model.AbsenceDay, error)
	AddSlot(ctx context.Context, providerID string, start, end time.Time) (*model.AvailabilitySlot, error)
	ListSlots(ctx context.Context, providerID string, from, to time.Time) ([]model.AvailabilitySlot, error)
	AddSchedule(ctx context.Context, providerID string, rule model.ScheduleRule, startDate, endDate *time.Time) (*model.Schedule, error)
	GenerateSlots(ctx context.Context, providerID string, window calendar.TimeRange) ([]model.AvailabilitySlot, error)
}

type Config struct {
	Appointments Appointments
	Calendar     Calendar
	Inbound      messaging.Handler

	// Пояс для дат без времени (отсутствия, границы расписаний).
	Location *time.Location

	// Лимит входящих сообщений на пользователя в минуту; <= 0 - без лимита.
	InboundPerMinute int

	Log *zap.Logger
}

// NewRouter собирает gin.Engine со всеми маршрутами.
func NewRouter(cfg Config) *gin.Engine {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(cfg.Log))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	ah := &appointmentHandler{svc: cfg.Appointments, log: cfg.Log}
	appts := r.Group("/appointments")
	{
		appts.POST("", ah.Create)
		appts.GET("/:id", ah.Get)
		appts.GET("/code/:code", ah.GetByCode)
		appts.PATCH("/:id/status", ah.UpdateStatus)
		appts.DELETE("/:id", ah.Delete)
	}

	ph := &providerHandler{svc: cfg.Calendar, appts: cfg.Appointments, loc: cfg.Location, log: cfg.Log}
	providers := r.Group("/providers")
	{
		providers.GET("", ph.List)
		providers.POST("", ph.Create)
		providers.GET("/:id", ph.Get)
		providers.GET("/:id/appointments", ph.Appointments)
		providers.POST("/:id/absences", ph.AddAbsence)
		providers.GET("/:id/slots", ph.ListSlots)
		providers.POST("/:id/slots", ph.AddSlot)
		providers.POST("/:id/slots/generate", ph.GenerateSlots)
		providers.POST("/:id/schedules", ph.AddSchedule)
	}

	if cfg.Inbound != nil {
		wh := newWebhookHandler(cfg.Inbound, cfg.InboundPerMinute, cfg.Log)
		r.POST("/messages", wh.Receive)
	}
	return r
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
