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

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"studiobook/api"
	"studiobook/auth"
	"studiobook/backup"
	"studiobook/config"
	"studiobook/db"
	"studiobook/events"
	"studiobook/kvstore"
)

// @title           StudioBook API
// @version         1.0.0

// @description     ## StudioBook API
// @description
// @description     Data layer of a studio booking site. Customers browse services and showcase
// @description     videos and request bookings. A single admin manages the catalog and moves
// @description     bookings between `pending`, `confirmed` and `cancelled`.
// @description
// @description     Every collection is stored as one JSON array under a fixed key in a pluggable
// @description     key-value store (`file`, `memory`, `redis`, `sqlite` or `mongo`).
// @description
// @description     Admin routes need `Authorization: Bearer <token>` with the token returned by
// @description     `POST /auth/login`. Without it they answer 401 with a `redirect` to the login page.

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.jwt BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the session token.
func main() {
	// --- Configuration ---
	cfg, err := config.LoadConfig(os.Args[1:])
	if err != nil {
		logrus.Fatalf("CRITICAL: Failed to load configuration: %v", err)
	}
	configureLogging(cfg.Log)

	ctx := context.Background()

	// --- Store & Collections ---
	store, err := kvstore.Open(ctx, cfg)
	if err != nil {
		logrus.Fatalf("CRITICAL: Failed to open %s store: %v", cfg.Store.Backend, err)
	}

	database, err := db.NewDatabase(ctx, store)
	if err != nil {
		logrus.Fatalf("CRITICAL: Failed to initialize database: %v", err)
	}
	if err := database.Seed(ctx); err != nil {
		logrus.Fatalf("CRITICAL: Failed to seed default content: %v", err)
	}

	hub := events.NewHub()
	database.SetPublisher(hub)

	gate := auth.NewGate(store, cfg.Auth.JwtSecret)
	if err := gate.Restore(ctx); err != nil {
		logrus.Fatalf("CRITICAL: Failed to restore admin session: %v", err)
	}

	// Another process editing the store file replaces the cached collections and session.
	if fileStore, ok := store.(*kvstore.FileStore); ok {
		fileStore.OnExternalChange(func() {
			reloadCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := database.Reload(reloadCtx); err != nil {
				logrus.WithError(err).Error("Failed to reload collections after external change")
			}
			if err := gate.Restore(reloadCtx); err != nil {
				logrus.WithError(err).Error("Failed to restore session after external change")
			}
		})
	}

	// --- Scheduled Backups ---
	var scheduler *backup.Scheduler
	if cfg.Backup.Schedule != "" {
		scheduler, err = backup.NewScheduler(store, cfg.Backup.Dir, cfg.Backup.Schedule)
		if err != nil {
			logrus.Fatalf("CRITICAL: %v", err)
		}
		scheduler.Start()
	}

	// --- HTTP ---
	if strings.EqualFold(cfg.Log.Level, "debug") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.SetupRouter(database, gate, hub, cfg)

	server := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           api.NewHandler(router, cfg),
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
	}

	// Websocket subscribers are hijacked connections that Shutdown does not wait for.
	server.RegisterOnShutdown(hub.Close)

	go func() {
		logrus.Infof("Starting server on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("CRITICAL: Server failed to start: %v", err)
		}
	}()

	// wait for interrupt or SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logrus.Info("Shutdown signal received; shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("Graceful shutdown failed")
	}
	if scheduler != nil {
		scheduler.Stop(shutdownCtx)
	}
	// Flushes a pending debounced save for the file store.
	if err := database.Close(); err != nil {
		logrus.WithError(err).Error("Failed to close store")
	}

	logrus.Info("Server stopped cleanly")
}

func configureLogging(cfg config.LogConfig) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logrus.Warnf("Unknown log level %q, using info", cfg.Level)
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}
