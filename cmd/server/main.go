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

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sujalbistaa/krishi/internal/auth"
	"github.com/sujalbistaa/krishi/internal/config"
	"github.com/sujalbistaa/krishi/internal/db"
	routes "github.com/sujalbistaa/krishi/internal/http"
	"github.com/sujalbistaa/krishi/internal/qa"
	"github.com/sujalbistaa/krishi/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		return cfg.Build()
	}
	return zap.NewProductionConfig().Build()
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := newLogger(cfg.Dev())
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	// 1. Initialize Database
	database, err := db.Open(cfg.DatabaseURL, log)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	// 2. Run Migrations
	log.Info("running database migrations")
	if err := db.Migrate(database); err != nil {
		return err
	}
	log.Info("migrations complete")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Initialize WebSocket Hub
	hub := ws.NewHub(log.Named("ws"))
	go hub.Run()
	defer hub.Stop()

	limiter := routes.DefaultRateLimiter()
	go limiter.RunPruner(ctx, 10*time.Minute)

	// 4. Initialize Gin Router
	if !cfg.Dev() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	authCfg := auth.Config{JWTSecret: cfg.JWTSecret, TokenTTL: cfg.TokenTTL}
	env := &routes.Env{
		QA:            qa.NewService(database),
		Auth:          auth.NewService(database, authCfg),
		AuthConfig:    authCfg,
		Hub:           hub,
		Metrics:       routes.NewMetrics("krishi"),
		Log:           log.Named("http"),
		AdminToken:    cfg.AdminToken,
		AdminPassword: cfg.AdminPassword,
	}

	// 5. Setup Routes
	routes.SetupRoutes(router, env, limiter, cfg.CORSOrigin)

	// 6. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server exiting")
	return nil
}
