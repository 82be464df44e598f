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

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"eye-report/api/internal/app"
	"eye-report/api/internal/config"
	"eye-report/api/internal/httpapi"
	"eye-report/api/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	lg, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, lg, "http")
	if err != nil {
		lg.Fatal("init failed", zap.Error(err))
	}
	defer a.Close()
	a.WarmReference(ctx)

	h := httpapi.New(a.Service, httpapi.Options{
		MaxImageBytes: cfg.MaxImageBytes,
		ShareBaseURL:  cfg.ShareBaseURL,
		Health:        a.Health,
	}, lg)

	// no write timeout: a dispatch blocks for as long as the provider takes
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
	}

	go func() {
		lg.Info("report api listening", zap.String("addr", srv.Addr), zap.String("engine", a.Service.Model()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	lg.Info("shutting down server")

	sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		lg.Error("forced shutdown", zap.Error(err))
	}
	lg.Info("server exited")
}
