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
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/queue-token-service/internal/booking"
	"github.com/iliyamo/queue-token-service/internal/config"
	"github.com/iliyamo/queue-token-service/internal/database"
	"github.com/iliyamo/queue-token-service/internal/handler"
	"github.com/iliyamo/queue-token-service/internal/lock"
	"github.com/iliyamo/queue-token-service/internal/middleware"
	"github.com/iliyamo/queue-token-service/internal/queue"
	"github.com/iliyamo/queue-token-service/internal/repository"
	"github.com/iliyamo/queue-token-service/internal/router"
	"github.com/iliyamo/queue-token-service/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("warning: .env not loaded: %v", err)
	}
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName,
		database.Options{MaxOpenConns: cfg.DBMaxOpenConns})
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	rdb := config.NewRedisClient()
	if rdb != nil {
		defer rdb.Close()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	lockCfg := config.LoadLockConfig()
	var locker lock.Locker = lock.NewLocal(lockCfg.Wait)
	if lockCfg.Backend == "redis" {
		if rdb == nil {
			log.Printf("lock: redis backend requested but redis is unavailable, using in-process locks")
		} else {
			locker = lock.NewRedis(rdb, lock.RedisOptions{Prefix: lockCfg.Prefix, TTL: lockCfg.TTL, Wait: lockCfg.Wait})
		}
	}

	opts := []booking.Option{
		booking.WithLocker(locker),
		booking.WithMetrics(booking.NewMetrics(reg)),
		booking.WithLocation(cfg.SlotLocation),
		booking.WithServices(cfg.Services...),
	}

	notes := repository.NewNotificationRepo(db)
	qcfg := config.LoadQueueConfig()
	if qcfg.Enabled {
		pub := service.NewPublisher(qcfg.URL, qcfg.Queue)
		defer pub.Close()
		opts = append(opts, booking.WithEvents(pub))

		consumer := &queue.Consumer{URL: qcfg.URL, Queue: qcfg.Queue, LogDir: qcfg.LogDir, Notes: notes}
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("token-consumer: stopped: %v", err)
			}
		}()
	}

	engine := booking.New(repository.NewStore(db), opts...)
	if sweep := config.LoadSweepConfig(); sweep.Interval > 0 {
		go engine.RunSweeper(ctx, sweep.Interval)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.Logger())

	users := repository.NewUserRepo(db)
	router.Register(e, router.Handlers{
		Auth:          handler.NewAuthHandler(cfg, users, repository.NewRefreshTokenRepo(db)),
		Slots:         handler.NewSlotHandler(engine),
		Tokens:        handler.NewTokenHandler(engine),
		Staff:         handler.NewStaffHandler(engine),
		Reports:       handler.NewReportHandler(engine),
		Notifications: handler.NewNotificationHandler(notes),
		Health:        handler.Health(db),
		Metrics:       echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})),
	}, router.Middleware{
		Cache:     middleware.NewRedisCache(config.LoadCacheConfig(), rdb),
		RateLimit: middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb),
	}, cfg.JWTSecret)

	addr := ":" + cfg.Port
	go func() {
		log.Printf("listening on %s (env=%s)", addr, cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
