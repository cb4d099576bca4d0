package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arale275/autix-sub003/auth"
	"github.com/arale275/autix-sub003/core"
)

func main() {
	cfg, err := core.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, logCloser, err := core.SetupLogging(cfg, "api.log")
	if err != nil {
		log.Fatalf("failed to setup logging: %v", err)
	}
	defer logCloser.Close()

	creds := auth.NewCredentialService(cfg.BcryptCost)
	if err := creds.SelfCheck(); err != nil {
		log.Fatalf("credential self-check failed: %v", err)
	}
	hasher := auth.NewHashPool(creds, cfg.HashWorkers, cfg.HashQueue)
	defer hasher.Close()

	tokens, err := auth.NewTokenService(cfg.JWTSecret)
	if err != nil {
		log.Fatalf("failed to init tokens: %v", err)
	}

	db, err := core.Connect(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer db.Close()

	redisClient, err := core.NewRedisClient(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer redisClient.Close()

	userRepo := core.NewPgUserRepository(db, cfg.DBQueryTimeout)
	authService := core.NewRepositoryAuthService(userRepo, hasher, tokens, logger)

	if err := core.BootstrapAccount(ctx, userRepo, hasher, cfg, logger); err != nil {
		log.Fatalf("bootstrap account failed: %v", err)
	}

	google := core.NewGoogleLogin(cfg, core.NewRedisStateStore(redisClient), authService, logger)
	if google == nil {
		logger.Info("google login disabled: GOOGLE_CLIENT_ID/GOOGLE_CLIENT_SECRET not set")
	}
	status := core.NewStatusReporter(map[string]core.Pinger{
		"postgres": db,
		"redis":    core.RedisPinger(redisClient),
	}, hasher)

	router := core.NewRouter(cfg, authService, tokens, google, status, logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("starting api server", "addr", srv.Addr, "bcrypt_cost", creds.Cost(), "hash_workers", cfg.HashWorkers)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server failed: %v", err)
	}
	logger.Info("api server stopped")
}
