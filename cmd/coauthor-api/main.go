package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coauthorhq/coauthor-api/internal/config"
	"github.com/coauthorhq/coauthor-api/internal/database"
	"github.com/coauthorhq/coauthor-api/internal/handlers"
	"github.com/coauthorhq/coauthor-api/internal/hub"
	authmw "github.com/coauthorhq/coauthor-api/internal/middleware"
	"github.com/coauthorhq/coauthor-api/internal/services"
	"github.com/m1z23r/drift/pkg/drift"
	"github.com/m1z23r/drift/pkg/middleware"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()

	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	jwtService := services.NewJWTService(cfg.JWTSecret, cfg.JWTAccessExpiry)
	userService := services.NewUserService(db)
	lockService := services.NewLockService(db, cfg.LockTTL)
	sessionService := services.NewSessionService(db, cfg.SessionLifetime, cfg.SessionIdleTimeout)

	h := hub.NewHub()
	go h.Run()

	lockHandler := handlers.NewLockHandler(lockService)
	sessionHandler := handlers.NewSessionHandler(sessionService, userService, h)
	streamHandler := handlers.NewStreamHandler(h, sessionService)

	app := drift.New()

	if cfg.IsProduction() {
		app.SetMode(drift.ReleaseMode)
	} else {
		app.SetMode(drift.DebugMode)
	}

	app.Use(middleware.Recovery())
	app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       86400,
	}))
	app.Use(middleware.BodyParser())

	api := app.Group("/api/v1")

	protected := api.Group("")
	protected.Use(authmw.Auth(jwtService))

	protected.Post("/locks/acquire", lockHandler.Acquire)
	protected.Post("/locks/refresh", lockHandler.Refresh)
	protected.Post("/locks/release", lockHandler.Release)
	protected.Get("/locks", lockHandler.List)

	protected.Post("/sessions", sessionHandler.Create)
	protected.Post("/sessions/join", sessionHandler.Join)
	protected.Post("/sessions/:sessionId/leave", sessionHandler.Leave)
	protected.Post("/sessions/:sessionId/end", sessionHandler.End)
	protected.Get("/sessions/:sessionId/participants", sessionHandler.Participants)
	protected.Post("/sessions/:sessionId/deltas", streamHandler.PublishDelta)
	protected.Post("/sessions/:sessionId/snapshot", streamHandler.SaveSnapshot)
	protected.Get("/sessions/:sessionId/events", streamHandler.Connect)

	api.Get("/health", func(c *drift.Context) {
		_ = c.JSON(200, map[string]string{"status": "ok"})
	})

	// Expired leases are invisible to acquire/refresh either way; the
	// sweep just keeps listing views tidy.
	go func() {
		ticker := time.NewTicker(cfg.LockReapInterval)
		for range ticker.C {
			if _, err := lockService.ReapExpired(context.Background()); err != nil {
				log.Printf("Lock reap failed: %v", err)
			}
		}
	}()

	// Abandoned sessions end within one reap interval of going stale,
	// and anyone still connected hears about it.
	go func() {
		ticker := time.NewTicker(cfg.SessionReapInterval)
		for range ticker.C {
			ended, err := sessionService.ReapStale(context.Background())
			if err != nil {
				log.Printf("Session reap failed: %v", err)
				continue
			}
			for _, sessionID := range ended {
				h.BroadcastSessionEnded(sessionID, "expired")
			}
		}
	}()

	go func() {
		addr := fmt.Sprintf(":%s", cfg.Port)
		log.Printf("Server starting on %s", addr)
		if err := app.Run(addr); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
}
