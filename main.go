// Package main our entry point.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/johndosdos/duochat/internal"
	"github.com/johndosdos/duochat/internal/auth"
	"github.com/johndosdos/duochat/internal/blob"
	"github.com/johndosdos/duochat/internal/chat"
	"github.com/johndosdos/duochat/internal/config"
	"github.com/johndosdos/duochat/internal/handler"
	"github.com/johndosdos/duochat/internal/model"
	ratelimiter "github.com/johndosdos/duochat/internal/rate_limiter"
	"github.com/johndosdos/duochat/internal/session"
	"github.com/johndosdos/duochat/internal/snapshot"
	ws "github.com/johndosdos/duochat/internal/websocket"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.SetOutput(os.Stdout)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Println("Starting application...")

	// Init state
	store := snapshot.New(cfg.SnapshotPath, cfg.LegacySnapshotPath, model.ChannelNames(), logger)

	blobs, err := blob.NewDiskStore(blob.Options{
		Dir:          cfg.UploadDir,
		Prefix:       blob.DefaultPrefix,
		MaxBytes:     cfg.MaxUploadBytes,
		MaxWidth:     cfg.MaxImageWidth,
		MaxPixels:    cfg.MaxImagePixels,
		AllowedTypes: cfg.AllowedMIMETypes,
	}, logger)
	if err != nil {
		log.Fatalf("failed to prepare upload directory: %v", err)
	}

	if cfg.AdminSecret == "" {
		logger.Warn("ADMIN_SECRET is not set; clear requests will be rejected")
	}
	secret, err := auth.NewAdminSecret(cfg.AdminSecret, nil)
	if err != nil {
		log.Fatalf("failed to hash admin secret: %v", err)
	}

	manager := chat.NewManager(store.Load(), chat.Config{
		MaxMessages:      cfg.MaxMessages,
		MaxMessageLength: cfg.MaxMessageLength,
		Store:            store,
		Blobs:            blobs,
		Secret:           secret,
		Log:              logger,
	})

	// hub.Run is our central hub that is always listening for client related events.
	hub := ws.NewHub(manager, session.NewRegistrar(manager), ws.Options{
		MessageRate:  cfg.MessageRate,
		MessageBurst: cfg.MessageBurst,
		Log:          logger,
	})
	manager.SetBroadcaster(hub)
	go hub.Run(ctx)

	uploadLimiter := ratelimiter.NewIPRateLimiter(cfg.UploadRate, time.Minute, cfg.UploadBurst, ratelimiter.CleanupOpts{
		TTL:      10 * time.Minute,
		Interval: time.Minute,
	})
	defer uploadLimiter.Stop()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/ws", handler.ServeWs(hub, cfg.AllowedOrigins))
	r.Get("/healthz", handler.ServeHealth(manager, hub))

	r.Group(func(r chi.Router) {
		r.Use(internal.CORS(cfg.AllowedOrigins))
		r.Use(uploadLimiter.Middleware)
		r.Options("/upload", func(w http.ResponseWriter, r *http.Request) {})
		r.Post("/upload", handler.ServeUpload(blobs, cfg.MaxUploadBytes))
	})

	prefix := strings.TrimSuffix(blobs.Prefix(), "/")
	r.Handle(prefix+"/*", http.StripPrefix(prefix, http.FileServer(http.Dir(blobs.Dir()))))

	// No read/write timeouts: they would also cut hijacked websocket
	// connections. Upload bodies are bounded by MaxBytesReader.
	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	go func() {
		log.Printf("Server starting at 0.0.0.0:%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("Shutdown signal received; shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Println(err)
	}

	log.Println("Server stopped")
}
