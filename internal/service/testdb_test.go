package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Leganyst/counseling-booking/internal/calendar"
	"github.com/Leganyst/counseling-booking/internal/codegen"
	"github.com/Leganyst/counseling-booking/internal/model"
)

// Понедельник, 2030-01-07; "сейчас" в тестах - месяцем раньше.
var testNow = time.Date(2029, 12, 1, 12, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// одна база :memory: живёт, пока жив её единственный коннект
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := model.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func testHours(t *testing.T) *calendar.WorkingHours {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	h, err := calendar.NewWorkingHours(loc, 8, 17, []time.Weekday{
		time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
	})
	if err != nil {
		t.Fatalf("working hours: %v", err)
	}
	return h
}

// at - 2030-01-07 hh:mm по Москве.
func at(t *testing.T, hour, minute int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return time.Date(2030, 1, 7, hour, minute, 0, 0, loc)
}

func seedProvider(t *testing.T, db *gorm.DB) *model.Provider {
	t.Helper()
	p := &model.Provider{DisplayName: "Dr. Ivanova"}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("seed provider: %v", err)
	}
	return p
}

type fakePlanner struct {
	mu    sync.Mutex
	codes []string
}

func (f *fakePlanner) Schedule(_ context.Context, a *model.Appointment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codes = append(f.codes, a.Code)
	return nil
}

func newTestReservation(t *testing.T, db *gorm.DB, opts ...ReservationOption) *ReservationService {
	t.Helper()
	opts = append([]ReservationOption{WithClock(func() time.Time { return testNow })}, opts...)
	return NewReservationService(db, testHours(t), codegen.New(), zap.NewNop(), opts...)
}

func countAppointments(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&model.Appointment{}).Count(&n).Error; err != nil {
		t.Fatalf("count appointments: %v", err)
	}
	return n
}
