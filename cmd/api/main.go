package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"checkin/internal/app"
	"checkin/internal/attendance"
	"checkin/internal/config"
	"checkin/internal/httpapi"
	"checkin/internal/httpmiddleware"
)

func main() {
	cfg := config.Load()

	// Set Gin mode based on environment
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	// Keeps the in-memory list fresh with writes from other instances.
	poller := attendance.NewPoller(deps.Manager, cfg.PollInterval, func(entries []attendance.Entry, source attendance.Source) {
		if source != attendance.SourceRemote {
			log.Printf("serving %d entries from %s", len(entries), source)
		}
	})
	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		poller.Run(ctx)
	}()

	handler := httpapi.New(deps.Manager, deps.Bus, httpapi.Settings{
		HasGenderField: cfg.HasGenderField,
		PageSize:       cfg.PageSize,
		RecentWindow:   cfg.RecentWindow,
		LookupDebounce: cfg.LookupDebounce,
		MinPhoneLength: cfg.MinPhoneLength,
		PublicURL:      cfg.PublicURL,
		ExportPrefix:   cfg.ExportPrefix,
	})
	defer handler.Close()

	checks := map[string]httpapi.HealthCheck{}
	if deps.DB != nil {
		checks["db"] = deps.DB.Healthy
	}
	if deps.Redis != nil {
		checks["redis"] = deps.Redis.Healthy
	}
	r := httpapi.NewRouter(handler, httpapi.RouterOptions{
		Limiter: httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware(),
		Checks:  checks,
	})

	srv := &http.Server{
		Addr:        ":" + cfg.HTTPPort,
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
		// Ends open change streams when a shutdown signal arrives.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	// Start server in goroutine
	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down server...")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}
	<-pollDone

	log.Println("Server exited")
	return nil
}
