package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"academy/internal/app"
	"academy/internal/attendance"
	"academy/internal/auth"
	"academy/internal/config"
	"academy/internal/directory"
	"academy/internal/enrollment"
	"academy/internal/httpapi"
	"academy/internal/logger"
	"academy/internal/notify"
	"academy/internal/quiz"
	"academy/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, cfg.LogPretty)

	// Set Gin mode based on environment
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("http server failed")
	}
}

func runHTTP(cfg config.App, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MigrateOnStart {
		if err := store.Migrate(cfg.DatabaseDriver, cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		log.Info().Str("driver", cfg.DatabaseDriver).Msg("migrations applied")
	}

	db, err := store.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	rdb := store.NewRedis(cfg.RedisAddr)
	defer rdb.Close()

	q, closeQueue, err := app.Queue(cfg, rdb, log)
	if err != nil {
		return err
	}
	defer closeQueue()

	locker, err := app.Locker(cfg, rdb)
	if err != nil {
		return err
	}

	var resolver auth.Resolver
	if !cfg.DirectorySkip {
		dir := directory.New(cfg.DirectoryURL, false, log)
		if rdb != nil {
			dir.WithCache(rdb.Client, cfg.DirectoryCacheTTL)
		}
		if err := dir.Health(ctx); err != nil {
			log.Warn().Err(err).Msg("user directory not available")
		}
		resolver = dir
	}

	dispatcher := notify.NewDispatcher(db, q, log)
	att := attendance.NewService(db, log, cfg.Location())
	deps := httpapi.Deps{
		DB:         db,
		Redis:      rdb,
		Enrollment: enrollment.NewService(db, log),
		Attendance: att,
		Quiz:       quiz.NewService(db, locker, att, dispatcher, log),
		Resolver:   resolver,
	}

	// The in-memory queue lives in this process, so this process delivers.
	if cfg.QueueBackend == "memory" {
		deliverer := notify.NewDeliverer(db, app.Sink(cfg, log), log)
		go func() {
			if err := deliverer.Serve(ctx, q, time.Minute, 100); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("in-process delivery stopped")
			}
		}()
	}

	r := httpapi.NewRouter(httpapi.Options{
		SigningKey:      cfg.JWTSigningKey,
		Issuer:          cfg.JWTIssuer,
		RateLimitPerMin: cfg.RateLimitPerMin,
		AllowedOrigins:  cfg.CORSOrigins,
	}, deps, log)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("env", cfg.Env).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info().Msg("server exited")
	return nil
}
