package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lukabudik/todofordevs-sub000/internal/app/migrate"
	httpx "github.com/lukabudik/todofordevs-sub000/internal/http"
	"github.com/lukabudik/todofordevs-sub000/internal/repository/memory"
	"github.com/lukabudik/todofordevs-sub000/internal/repository/postgres"
	"github.com/lukabudik/todofordevs-sub000/internal/service/auth"
	"github.com/lukabudik/todofordevs-sub000/pkg/config"
	"github.com/lukabudik/todofordevs-sub000/pkg/jwt"
	"github.com/lukabudik/todofordevs-sub000/pkg/logger"
)

func main() {
	cfg := config.LoadAPIConfig()
	log := logger.New("api", logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	runner, err := migrate.New(pool, cfg.MigrationsDir, log)
	if err != nil {
		log.Error("failed to configure migrations", "error", err)
		os.Exit(1)
	}
	if err := runner.Ping(ctx); err != nil {
		log.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	if err := runner.Ensure(ctx); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}
	runner.Close()

	signer, err := jwt.NewSigner(cfg.JWTSecret, cfg.JWTIssuer)
	if err != nil {
		log.Error("invalid token signer configuration", "error", err)
		os.Exit(1)
	}
	if cfg.Environment == "production" && cfg.JWTSecret == "supersecuresecret" {
		log.Warn("JWT_SECRET is the development default")
	}

	repo := postgres.New(pool)
	// Pending device authorizations live only in this process.
	deviceCodes := memory.NewDeviceCodeStore(
		memory.WithSweepInterval(cfg.DeviceSweepInterval),
		memory.WithLogger(log),
	)
	go deviceCodes.Run(ctx)

	authSvc := auth.New(repo, deviceCodes, signer, log, cfg)

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter.Close()
			limiter = redisLimiter
		}
	}

	router := httpx.NewRouter(log, authSvc, limiter, repo.Ping, deviceCodes.Len, cfg)
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr, "env", cfg.Environment)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("api server stopped", "abandoned_device_codes", deviceCodes.Len())
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
