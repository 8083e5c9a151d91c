package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/lot-reservation/internal/config"
	"github.com/iliyamo/lot-reservation/internal/database"
	"github.com/iliyamo/lot-reservation/internal/handler"
	"github.com/iliyamo/lot-reservation/internal/identity"
	"github.com/iliyamo/lot-reservation/internal/lock"
	"github.com/iliyamo/lot-reservation/internal/middleware"
	"github.com/iliyamo/lot-reservation/internal/queue"
	"github.com/iliyamo/lot-reservation/internal/repository"
	"github.com/iliyamo/lot-reservation/internal/reservation"
	"github.com/iliyamo/lot-reservation/internal/router"
	"github.com/iliyamo/lot-reservation/internal/service"
	"github.com/iliyamo/lot-reservation/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := setupLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("starting lot reservation service", "env", cfg.Env, "auth_mode", cfg.Auth.Mode,
		"payment_gate", cfg.RequirePaymentBeforeApproval)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, database.Options{
		User: cfg.DB.User, Pass: cfg.DB.Pass, Host: cfg.DB.Host, Port: cfg.DB.Port, Name: cfg.DB.Name,
		MaxOpen: cfg.DB.MaxOpen, MaxIdle: cfg.DB.MaxIdle, Lifetime: cfg.DB.Lifetime,
	})
	if err != nil {
		logger.Error("failed to connect to MySQL", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if cfg.DB.Migrate {
		if err := database.Migrate(ctx, db); err != nil {
			logger.Error("schema migration failed", "error", err)
			os.Exit(1)
		}
	}

	rdb := config.NewRedisClient(cfg.Redis)
	if rdb == nil {
		logger.Warn("redis unreachable; caching, rate limiting and sweep locking disabled")
	} else {
		defer rdb.Close()
	}

	resolver, profiles, deliverer := identityStack(cfg, logger)

	publisher := service.NewNotificationPublisher(cfg.RabbitMQURL, cfg.Notify.Queue, deliverer, logger)
	defer publisher.Close()

	proofs, err := proofStore(cfg)
	if err != nil {
		logger.Error("failed to initialize proof storage", "error", err)
		os.Exit(1)
	}

	cache := middleware.NewResponseCache(cfg.Cache, rdb, logger)
	engine := reservation.NewEngine(repository.NewStore(db, logger),
		reservation.WithLogger(logger),
		reservation.WithNotifier(publisher),
		reservation.WithProfiles(profiles),
		reservation.WithProofStore(proofs),
		reservation.WithPaymentGate(cfg.RequirePaymentBeforeApproval),
		reservation.WithPaymentWindow(cfg.PaymentWindow()),
		reservation.WithNotifyTimeout(cfg.Notify.Timeout),
		reservation.WithAvailabilityHook(cache.InvalidateLot),
	)

	var workers sync.WaitGroup
	sweeper := reservation.NewSweeper(engine, lock.NewRedisLocker(rdb, logger), reservation.SweeperConfig{
		ExpiryInterval:  cfg.ExpirySweepInterval,
		ArchiveInterval: cfg.ArchiveSweepInterval,
		LockTTL:         cfg.SweepLockTTL,
	}, logger)
	workers.Add(1)
	go func() {
		defer workers.Done()
		sweeper.Run(ctx)
	}()

	if cfg.Notify.Consumer {
		consumer := queue.NewConsumer(cfg.RabbitMQURL, cfg.Notify.Queue, deliverer, cfg.Notify.Timeout, logger)
		workers.Add(1)
		go func() {
			defer workers.Done()
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("notification consumer stopped", "error", err)
			}
		}()
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(requestLogger(logger))
	router.Register(e, router.Deps{
		Resolver:     resolver,
		Health:       handler.NewHealthHandler(db),
		Bookings:     handler.NewBookingHandler(engine),
		Payments:     handler.NewPaymentHandler(engine),
		Availability: handler.NewAvailabilityHandler(engine),
		Cache:        cache,
		RateLimit:    middleware.NewTokenBucket(cfg.RateLimit, rdb, logger),
	})

	e.Server.ReadTimeout = 15 * time.Second
	e.Server.WriteTimeout = 30 * time.Second
	e.Server.IdleTimeout = 60 * time.Second

	go func() {
		addr := ":" + cfg.Port
		logger.Info("server starting", "addr", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("server is shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	workers.Wait()
	engine.Wait()
	logger.Info("server exited")
}

// identityStack picks the token resolver, the profile source and the final
// notification destination for the configured auth mode.
func identityStack(cfg config.Config, logger *slog.Logger) (identity.Resolver, reservation.ProfileLookup, queue.Deliverer) {
	var client *identity.Client
	if cfg.Auth.ServiceURL != "" {
		client = identity.NewClient(cfg.Auth.ServiceURL, cfg.Auth.Timeout)
	}
	if cfg.Auth.Mode == config.AuthJWT {
		local := identity.NewJWTResolver(cfg.JWTSecret)
		if client == nil {
			logger.Warn("no AUTH_SERVICE_URL; notifications are only logged")
			return local, local, queue.LogDeliverer{Log: logger}
		}
		return local, client, client
	}
	return client, client, client
}

func proofStore(cfg config.Config) (reservation.ProofStore, error) {
	if cfg.Proof.Storage == config.ProofCloudinary {
		c := cfg.Cloudinary
		return storage.NewCloudinary(c.CloudName, c.APIKey, c.APISecret, c.Folder)
	}
	return storage.NewLocal(cfg.Proof.Dir)
}

func setupLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func requestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("request_id", v.RequestID),
			}
			level := slog.LevelInfo
			if v.Error != nil {
				level = slog.LevelError
				attrs = append(attrs, slog.String("err", v.Error.Error()))
			}
			logger.LogAttrs(c.Request().Context(), level, "request", attrs...)
			return nil
		},
	})
}
