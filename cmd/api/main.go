package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/j-keen/flexicrm/internal/app"
	"github.com/j-keen/flexicrm/internal/authpw"
	"github.com/j-keen/flexicrm/internal/config"
	"github.com/j-keen/flexicrm/internal/email"
	"github.com/j-keen/flexicrm/internal/export"
	"github.com/j-keen/flexicrm/internal/search"
	"github.com/j-keen/flexicrm/internal/session"
	"github.com/j-keen/flexicrm/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)

	sqlScan := search.NewSQLScan(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
	}
	searchService := search.NewService(meiliClient, sqlScan)
	if meiliClient != nil {
		defer meiliClient.Close()
	}

	deps := app.Deps{
		Store:  dataStore,
		Auth:   authpw.NewService(dataStore),
		Search: searchService,
		DB:     dataStore,
	}

	// Refresh tokens live in Redis when configured, Postgres otherwise.
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for refresh token storage")
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisStore.Close()
		deps.Sessions = redisStore
	} else {
		log.Printf("Using PostgreSQL for refresh token storage")
		deps.Sessions = store.NewPgSessions(db)
	}

	if strings.TrimSpace(cfg.ExportS3Endpoint) != "" {
		archive, err := export.NewStorage(ctx, cfg.ExportS3Endpoint, cfg.ExportS3AccessKey, cfg.ExportS3SecretKey, cfg.ExportS3Bucket, cfg.ExportS3UseSSL)
		if err != nil {
			log.Fatalf("export storage setup failed: %v", err)
		}
		deps.Exports = archive
	}

	if strings.TrimSpace(cfg.SMTPHost) != "" {
		deps.Mail = email.NewService(email.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
		})
	}

	service := app.New(cfg, deps)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("FlexiCRM API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
