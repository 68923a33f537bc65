package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fleetwall/internal/app"
	"fleetwall/internal/config"
	"fleetwall/internal/handler"
	"fleetwall/internal/hub"
	"fleetwall/internal/service"
	"fleetwall/internal/watcher"
)

func main() {
	configPath := flag.String("config", "", "config file (default: search standard locations)")
	addr := flag.String("addr", "", "HTTP listen address (overrides server.addr)")
	dbPath := flag.String("db", "", "SQLite database path (overrides database.path)")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting fleetwall server...")

	cfg, loadedFrom, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if loadedFrom != "" {
		log.Printf("Config loaded from %s", loadedFrom)
	} else {
		log.Println("No config file found, using defaults")
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	log.Print(cfg.Summary())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	if err := a.LoadDefinitions(ctx); err != nil {
		log.Printf("Failed to load definitions: %v", err)
	}

	// Connect event bus to SSE hub
	sseHub := hub.New()
	eventChan := make(chan service.Event, 100)
	a.EventBus.Subscribe(eventChan)
	go func() {
		for event := range eventChan {
			sseHub.Publish(string(event.Type), event)
		}
	}()

	if path := cfg.Definitions.Path; path != "" && cfg.Definitions.Watch {
		w := watcher.New(path, func(ctx context.Context) {
			if err := a.Service.ReloadDefinitions(ctx, path); err != nil {
				log.Printf("Definitions reload rejected: %v", err)
			}
		})
		go func() {
			if err := w.Watch(ctx); err != nil && err != context.Canceled {
				log.Printf("Watcher stopped: %v", err)
			}
		}()
	}

	mux := http.NewServeMux()
	handler.NewProvisioningHandler(a.Service).Routes(mux)
	mux.Handle("GET /events", sseHub)
	mux.Handle("GET /metrics", a.Metrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok\n"))
	})

	finalHandler := handler.Chain(mux,
		handler.Recover,
		handler.CORS,
		handler.Logger,
		handler.APIKeyAuth(cfg.Server.APIKeys),
	)

	// No WriteTimeout: deployments and SSE streams outlive any fixed bound.
	server := &http.Server{
		Addr:        cfg.Server.Addr,
		Handler:     finalHandler,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	server.RegisterOnShutdown(sseHub.Close)

	go func() {
		log.Printf("Server listening on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}

func loadConfig(path string) (*config.Config, string, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}
