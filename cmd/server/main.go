package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"watchwise/internal/app"
	"watchwise/internal/config"
	"watchwise/internal/httpapi"
	"watchwise/internal/scheduler"
)

func main() {
	cfg := config.New()
	cfg.SetupLogging()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to build engine: %v", err)
	}
	engine.Start(ctx)

	sched := scheduler.New()
	if err := engine.Schedule(sched); err != nil {
		log.Fatalf("failed to schedule jobs: %v", err)
	}
	sched.Start()

	api := httpapi.NewServer(engine.Recommender, engine.Feedback, engine.Verifier)
	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: api.Router(httpapi.Options{
			RateLimitRequests: cfg.RateLimitRequests,
			RateLimitWindow:   cfg.RateLimitWindow,
		}),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		log.Printf("🌐 HTTP API listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ HTTP server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("🔌 shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("❌ Server shutdown error: %v", err)
	}
	sched.Stop()
	if err := engine.Close(); err != nil {
		log.Printf("❌ failed to close engine: %v", err)
	}
}
