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

	"formdesk/api/internal/app"
	"formdesk/api/internal/blob"
	"formdesk/api/internal/config"
	"formdesk/api/internal/lock"
	"formdesk/api/internal/logging"
	"formdesk/api/internal/search"
	"formdesk/api/internal/store"
	"formdesk/api/internal/thumbnail"
)

func main() {
	ctx := context.Background()
	cfg, err := config.Load()
	if err != nil {
		logging.New("info", "json").Error(ctx, "config load failed", "error", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	fatal := func(msg string, err error) {
		log.Error(ctx, msg, "error", err)
		os.Exit(1)
	}

	dialect, err := store.ParseDialect(cfg.DatabaseDriver)
	if err != nil {
		fatal("invalid database driver", err)
	}
	db, err := store.Open(ctx, dialect, cfg.DatabaseURL)
	if err != nil {
		fatal("database connection failed", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, dialect); err != nil {
		fatal("migrations failed", err)
	}
	dataStore := store.NewSQLStore(db, dialect)

	deps := app.Deps{Store: dataStore, Logger: log}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Info(ctx, "using redis for form save locks")
		locker, err := lock.NewRedisLocker(cfg.RedisURL, cfg.LockTTL, cfg.LockWait)
		if err != nil {
			fatal("redis connection failed", err)
		}
		defer locker.Close()
		deps.Locker = locker
	} else {
		log.Info(ctx, "using in-process form save locks")
	}

	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		blobs, err := blob.NewMinioStore(ctx, blob.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			fatal("minio setup failed", err)
		}
		log.Info(ctx, "storing thumbnails in minio", "bucket", cfg.MinioBucket)
		deps.Blobs = blobs
	}

	thumbs, err := thumbnail.New(cfg.ThumbnailRenderer, cfg.ThumbnailTimeout)
	if err != nil {
		fatal("invalid thumbnail renderer", err)
	}
	deps.Thumbnails = thumbs

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log)
		defer meiliClient.Close()
	}
	deps.Search = search.NewService(meiliClient, dataStore, log)

	service := app.NewService(cfg, deps)
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
		log.Info(ctx, "formdesk api listening", "addr", cfg.Addr, "database", string(dialect))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("server failed", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "shutdown error", "error", err)
	}
}
