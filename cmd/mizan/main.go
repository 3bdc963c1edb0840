package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/mizan/internal/backup"
	"github.com/dukerupert/mizan/internal/config"
	"github.com/dukerupert/mizan/internal/database"
	"github.com/dukerupert/mizan/internal/email"
	"github.com/dukerupert/mizan/internal/logging"
	"github.com/dukerupert/mizan/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Setup("info").Error("load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.LogLevel)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		logger.Error("open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	emailClient := email.NewClient(cfg.EmailToken, cfg.EmailFrom, cfg.BaseURL)
	if !emailClient.Configured() {
		logger.Warn("email not configured, password reset mail disabled")
	}

	backupCfg := backup.Config{
		S3: backup.S3Config{
			Endpoint:  cfg.BackupEndpoint,
			Bucket:    cfg.BackupBucket,
			Region:    cfg.BackupRegion,
			AccessKey: cfg.BackupAccessKey,
			SecretKey: cfg.BackupSecretKey,
		},
		DBPath:     cfg.DBPath,
		Passphrase: cfg.BackupPassphrase,
		Interval:   cfg.BackupInterval,
	}

	srv := server.New(db, emailClient, backupCfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv.BackupManager().Start(ctx)
	defer srv.BackupManager().Stop()

	// Expired sessions and reset tokens age out hourly.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := srv.Identity().CleanupExpired(ctx); err != nil {
					logger.Error("cleanup expired sessions", "error", err)
				}
				srv.RateLimiter().Cleanup()
			}
		}
	}()

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("mizan listening", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	srv.Store().Close()
}
