package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// App - конфигурация сервиса целиком.
type App struct {
	DBConfig

	Env      string `envconfig:"ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`
	GRPCAddr string `envconfig:"GRPC_ADDR" default:":50051"`

	// Рабочие часы: [WorkStartHour, WorkEndHour) в BusinessTZ.
	BusinessTZ          string   `envconfig:"BUSINESS_TZ" default:"Europe/Moscow"`
	WorkStartHour       int      `envconfig:"WORK_START_HOUR" default:"8"`
	WorkEndHour         int      `envconfig:"WORK_END_HOUR" default:"17"`
	WorkDays            []string `envconfig:"WORK_DAYS" default:"mon,tue,wed,thu,fri"`
	AppointmentDuration int      `envconfig:"APPOINTMENT_DURATION_MIN" default:"60"`
	UseSlots            bool     `envconfig:"USE_AVAILABILITY_SLOTS" default:"false"`

	SessionFeeCents int64 `envconfig:"SESSION_FEE_CENTS" default:"0"`
	BookPriceCents  int64 `envconfig:"BOOK_PRICE_CENTS" default:"0"`

	SessionStore   string        `envconfig:"SESSION_STORE" default:"memory"`
	RedisAddr      string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword  string        `envconfig:"REDIS_PASSWORD"`
	RedisSessionDB int           `envconfig:"REDIS_SESSION_DB" default:"0"`
	SessionIdleTTL time.Duration `envconfig:"SESSION_IDLE_TTL" default:"30m"`

	ReminderSweepInterval time.Duration `envconfig:"REMINDER_SWEEP_INTERVAL" default:"60s"`

	AMQPURL      string `envconfig:"AMQP_URL"`
	AMQPExchange string `envconfig:"AMQP_EXCHANGE" default:"booking.exchange"`

	InboundRatePerMin int `envconfig:"INBOUND_RATE_PER_MIN" default:"30"`
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// Load читает .env (если есть) и переменные окружения.
func Load() (App, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment variables only")
	}

	var c App
	if err := envconfig.Process("", &c); err != nil {
		return App{}, fmt.Errorf("process env: %w", err)
	}
	if err := c.validate(); err != nil {
		return App{}, err
	}
	return c, nil
}

func (c App) validate() error {
	if err := c.DBConfig.validate(); err != nil {
		return err
	}
	if c.WorkStartHour < 0 || c.WorkEndHour > 24 || c.WorkStartHour >= c.WorkEndHour {
		return fmt.Errorf("invalid working hours: %d..%d", c.WorkStartHour, c.WorkEndHour)
	}
	if _, err := c.Weekdays(); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.AppointmentDuration <= 0 {
		return fmt.Errorf("APPOINTMENT_DURATION_MIN must be positive")
	}
	if (c.SessionFeeCents > 0 || c.BookPriceCents > 0) && c.AMQPURL == "" {
		return fmt.Errorf("payments are enabled but AMQP_URL is empty")
	}
	switch c.SessionStore {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown SESSION_STORE %q", c.SessionStore)
	}
	return nil
}

// Location - часовой пояс бизнеса.
func (c App) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.BusinessTZ)
	if err != nil {
		return nil, fmt.Errorf("load business timezone %q: %w", c.BusinessTZ, err)
	}
	return loc, nil
}

// Weekdays разбирает WORK_DAYS ("mon,tue,...").
func (c App) Weekdays() ([]time.Weekday, error) {
	days := make([]time.Weekday, 0, len(c.WorkDays))
	for _, raw := range c.WorkDays {
		d, ok := weekdayNames[strings.ToLower(strings.TrimSpace(raw))]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q in WORK_DAYS", raw)
		}
		days = append(days, d)
	}
	if len(days) == 0 {
		return nil, fmt.Errorf("WORK_DAYS must not be empty")
	}
	return days, nil
}

func (c App) IsProduction() bool {
	return c.Env == "production"
}

func (c App) AppointmentLength() time.Duration {
	return time.Duration(c.AppointmentDuration) * time.Minute
}
