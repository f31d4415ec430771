package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/Leganyst/counseling-booking/internal/calendar"
	"github.com/Leganyst/counseling-booking/internal/codegen"
	"github.com/Leganyst/counseling-booking/internal/config"
	"github.com/Leganyst/counseling-booking/internal/db"
	"github.com/Leganyst/counseling-booking/internal/dialogue"
	"github.com/Leganyst/counseling-booking/internal/httpapi"
	"github.com/Leganyst/counseling-booking/internal/logger"
	"github.com/Leganyst/counseling-booking/internal/messaging"
	"github.com/Leganyst/counseling-booking/internal/model"
	"github.com/Leganyst/counseling-booking/internal/mq"
	"github.com/Leganyst/counseling-booking/internal/payment"
	"github.com/Leganyst/counseling-booking/internal/reminder"
	"github.com/Leganyst/counseling-booking/internal/repository"
	"github.com/Leganyst/counseling-booking/internal/service"
	"github.com/Leganyst/counseling-booking/internal/session"
)

const (
	sessionSweepInterval = time.Minute
	inboundQueue         = "booking.inbound"
	paymentQueue         = "booking.payments"
)

func main() {
	// 1. Конфиг из env (.env подхватывается, если есть).
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	lg, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()
	zap.ReplaceGlobals(lg)

	loc, _ := cfg.Location() // проверено в config.Load
	days, _ := cfg.Weekdays()
	hours, err := calendar.NewWorkingHours(loc, cfg.WorkStartHour, cfg.WorkEndHour, days)
	if err != nil {
		lg.Fatal("working hours", zap.Error(err))
	}

	// 2. БД и миграции.
	gormDB, err := db.NewGormDB(&cfg.DBConfig)
	if err != nil {
		lg.Fatal("init db", zap.Error(err))
	}
	if err := model.AutoMigrate(gormDB); err != nil {
		lg.Fatal("auto migrate", zap.Error(err))
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		lg.Fatal("sql DB", zap.Error(err))
	}
	defer sqlDB.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Брокер: исходящие сообщения и платежи. Без AMQP_URL сообщения пишутся в лог.
	var (
		messenger messaging.Messenger = messaging.NewLogMessenger(lg.Named("messenger"))
		gateway   payment.Gateway
		publisher *mq.Publisher
	)
	if cfg.AMQPURL != "" {
		publisher, err = mq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			lg.Fatal("init amqp publisher", zap.Error(err))
		}
		defer publisher.Close()
		messenger = messaging.NewAMQPMessenger(publisher)
		gateway = payment.NewAMQPGateway(publisher)
	}

	// 4. Репозитории и сервисы.
	userRepo := repository.NewGormUserRepository(gormDB)
	clientRepo := repository.NewGormClientRepository(gormDB)
	providerRepo := repository.NewGormProviderRepository(gormDB)
	slotRepo := repository.NewGormSlotRepository(gormDB)
	scheduleRepo := repository.NewGormScheduleRepository(gormDB)
	absenceRepo := repository.NewGormAbsenceRepository(gormDB)
	apptRepo := repository.NewGormAppointmentRepository(gormDB)
	intakeRepo := repository.NewGormIntakeRepository(gormDB)

	scheduler := reminder.NewScheduler(gormDB, messenger, loc, lg.Named("reminder"))
	reservations := service.NewReservationService(gormDB, hours, codegen.New(), lg.Named("reservation"),
		service.WithSlots(cfg.UseSlots),
		service.WithReminders(scheduler),
	)
	calendarSvc := service.NewCalendarService(providerRepo, slotRepo, scheduleRepo, absenceRepo, hours, lg.Named("calendar"))
	identitySvc := service.NewIdentityService(userRepo, clientRepo)
	intakeSvc := service.NewIntakeService(intakeRepo, apptRepo, lg.Named("intake"))

	// 5. Сессии диалогов.
	var sessions session.Repository
	var memStore *session.MemoryStore
	switch cfg.SessionStore {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisSessionDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			lg.Fatal("connect redis", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		defer rdb.Close()
		sessions = session.NewRedisStore(rdb, cfg.SessionIdleTTL)
	default:
		memStore = session.NewMemoryStore(cfg.SessionIdleTTL)
		sessions = memStore
	}

	engine := dialogue.NewEngine(sessions, messenger, dialogue.Forms(dialogue.Deps{
		Hours:           hours,
		Duration:        cfg.AppointmentLength(),
		SessionFeeCents: cfg.SessionFeeCents,
		BookPriceCents:  cfg.BookPriceCents,
		Reserver:        reservations,
		Providers:       calendarSvc,
		Clients:         identitySvc,
		Intake:          intakeSvc,
		Payments:        gateway,
		Log:             lg.Named("dialogue"),
	}), lg.Named("dialogue"))

	// 6. Фоновые циклы.
	var wg sync.WaitGroup
	goRun := func(name string, fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
			lg.Info("worker stopped", zap.String("worker", name))
		}()
	}

	goRun("reminders", func() { scheduler.Run(ctx, cfg.ReminderSweepInterval) })
	if memStore != nil {
		goRun("sessions", func() {
			memStore.Run(ctx, sessionSweepInterval, func(n int) {
				lg.Info("idle sessions evicted", zap.Int("count", n))
			})
		})
	}

	if cfg.AMQPURL != "" {
		inbound, err := mq.NewConsumer(cfg.AMQPURL, cfg.AMQPExchange, inboundQueue, []string{messaging.RoutingInbound})
		if err != nil {
			lg.Fatal("init inbound consumer", zap.Error(err))
		}
		defer inbound.Close()
		payments, err := mq.NewConsumer(cfg.AMQPURL, cfg.AMQPExchange, paymentQueue, []string{payment.RoutingPaid, payment.RoutingFailed})
		if err != nil {
			lg.Fatal("init payment consumer", zap.Error(err))
		}
		defer payments.Close()

		goRun("inbound", func() {
			if err := messaging.NewInboundConsumer(inbound, engine, lg.Named("inbound")).Run(ctx); err != nil {
				lg.Error("inbound consumer", zap.Error(err))
			}
		})
		goRun("payments", func() {
			if err := payment.NewConsumer(payments, reservations, lg.Named("payment")).Run(ctx); err != nil {
				lg.Error("payment consumer", zap.Error(err))
			}
		})
	}

	// 7. HTTP: админка и вебхук входящих сообщений.
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	httpServer := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpapi.NewRouter(httpapi.Config{
			Appointments:     reservations,
			Calendar:         calendarSvc,
			Inbound:          engine,
			Location:         loc,
			InboundPerMinute: cfg.InboundRatePerMin,
			Log:              lg.Named("http"),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		lg.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("http serve", zap.Error(err))
		}
	}()

	// 8. gRPC: health и reflection для оркестратора.
	grpcServer := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		lg.Fatal("listen grpc", zap.String("addr", cfg.GRPCAddr), zap.Error(err))
	}
	go func() {
		lg.Info("grpc server listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			lg.Fatal("grpc serve", zap.Error(err))
		}
	}()
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	// 9. Грейсфул-шатдаун по сигналу.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	lg.Info("shutting down...")
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		lg.Error("http shutdown", zap.Error(err))
	}
	grpcServer.GracefulStop()

	cancel()
	wg.Wait()
}
