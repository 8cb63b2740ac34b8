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
	"watchwise/internal/mcpserver"
)

func main() {
	cfg := config.New()
	cfg.SetupLogging()

	log.Printf("🚀 Starting watchwise MCP server...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to build engine: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/mcp", mcpserver.New(engine.Recommender).Handler(app.Version))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: cfg.MCPAddr, Handler: mux}
	go func() {
		log.Printf("🌐 MCP SSE server listening on %s/mcp", cfg.MCPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ HTTP server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("🔌 MCP server shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("❌ Server shutdown error: %v", err)
	}
	if err := engine.Close(); err != nil {
		log.Printf("❌ failed to close engine: %v", err)
	}
}
