package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/photo-monetization/internal/auth"
	"github.com/iliyamo/photo-monetization/internal/config"
	"github.com/iliyamo/photo-monetization/internal/database"
	"github.com/iliyamo/photo-monetization/internal/handler"
	"github.com/iliyamo/photo-monetization/internal/logging"
	"github.com/iliyamo/photo-monetization/internal/middleware"
	"github.com/iliyamo/photo-monetization/internal/platform"
	"github.com/iliyamo/photo-monetization/internal/queue"
	"github.com/iliyamo/photo-monetization/internal/repository"
	"github.com/iliyamo/photo-monetization/internal/router"
	"github.com/iliyamo/photo-monetization/internal/service"
	"github.com/iliyamo/photo-monetization/internal/storage"
)

func main() {
	if err := run(); err != nil {
		logging.New(os.Getenv("APP_ENV"), config.Config{Env: os.Getenv("APP_ENV")}.IsProduction()).Error(context.Background(), "server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logging.New(cfg.Env, cfg.IsProduction())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.DSN())
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		return err
	}

	rdb := config.NewRedisClient(ctx)
	if rdb == nil {
		log.Warn(ctx, "redis unavailable, rate limiting and caching disabled")
	} else {
		defer rdb.Close()
	}

	objects, err := storage.NewS3Store(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	// stores
	users := repository.NewUserRepo(db)
	tokenRepo := repository.NewTokenRepo(db)
	images := repository.NewImageRepo(db)
	dists := repository.NewDistributionRepo(db)

	// services
	hasher := auth.NewPasswordHasher(cfg.BcryptCost)
	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL, tokenRepo)
	dir := service.NewUserDirectory(users, hasher)
	authSvc := service.NewAuthService(dir, hasher, tokens, auth.NewGoogleVerifier(cfg.GoogleClientID), log)
	imageSvc := service.NewImageService(images, objects, cfg.MaxUploadBytes, log)
	catalog := platform.DefaultCatalog()
	distSvc := service.NewDistributionService(imageSvc, dists, queue.NewPublisher(cfg.RabbitMQURL, log), catalog, log)

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = handler.ErrorHandler(log, cfg.IsProduction())
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			args := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
				"request_id", v.RequestID,
			}
			if v.Error != nil {
				args = append(args, "error", v.Error.Error())
			}
			log.Info(c.Request().Context(), "http request", args...)
			return nil
		},
	}))

	session := middleware.Session(tokens, dir)
	dh := handler.NewDistributionHandler(distSvc, catalog)
	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(authSvc, dir, cfg.RefreshTTL, cfg.IsProduction()), session,
		middleware.NewTokenBucket(cfg.RateLimit, rdb, log))
	router.RegisterImages(e, handler.NewImageHandler(imageSvc, cfg.MaxUploadBytes), dh, session)
	router.RegisterPlatforms(e, dh, middleware.NewRedisCache(cfg.Cache, rdb, log))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := queue.NewConsumer(cfg.RabbitMQURL, distSvc, log).Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error(ctx, "distribution consumer stopped", "error", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		log.Info(ctx, "listening", "addr", addr, "env", cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		stop()
		wg.Wait()
		return err
	}

	log.Info(context.Background(), "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "http shutdown", "error", err)
	}
	wg.Wait()
	return nil
}
