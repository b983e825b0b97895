package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/table-reservation/internal/config"
	"github.com/iliyamo/table-reservation/internal/database"
	"github.com/iliyamo/table-reservation/internal/handler"
	"github.com/iliyamo/table-reservation/internal/middleware"
	"github.com/iliyamo/table-reservation/internal/queue"
	"github.com/iliyamo/table-reservation/internal/repository"
	"github.com/iliyamo/table-reservation/internal/router"
	"github.com/iliyamo/table-reservation/internal/service"
)

func main() {
	_ = godotenv.Load() // .env is optional; real environment wins
	cfg := config.Load()

	logger, err := config.NewLogger(cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(ctx, db); err != nil {
		logger.Fatal("schema migration failed", zap.Error(err))
	}

	// Redis is optional: without it rate limiting and profile caching are off.
	rdb := config.NewRedisClient()
	if rdb == nil {
		logger.Warn("redis unavailable, rate limiting and profile cache disabled")
	} else {
		defer rdb.Close()
	}

	reservations := repository.NewReservationRepo(db, cfg.Buffer())
	diners := repository.NewDinerRepo(db, repository.NewProfileCache(config.LoadCacheConfig(), rdb))

	var events service.Publisher
	if cfg.EventsEnabled {
		events = &service.AMQPPublisher{URL: cfg.AMQPURL, Logger: logger}
		consumer := &queue.Consumer{URL: cfg.AMQPURL, LogDir: "logs", Logger: logger}
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("event consumer stopped", zap.Error(err))
			}
		}()
	}

	svc := service.NewReservationService(reservations, diners, events, logger, time.Now)

	e := echo.New()
	e.HideBanner = true
	router.RegisterRoutes(e, db)
	router.RegisterReservations(e,
		handler.NewReservationHandler(svc, cfg.JWTSecret, cfg.AvailabilityTTL(), logger),
		cfg.JWTSecret,
		middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, logger),
	)

	addr := ":" + cfg.Port
	go func() {
		logger.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env),
			zap.Duration("buffer", reservations.Buffer()))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
}
