// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// VAT Invoice Hub ingestion service.
//
// Entry point for the VAT ingestion backend. It:
//  1. Loads configuration from config.yaml / environment
//  2. Connects to PostgreSQL (and Redis when configured)
//  3. Wires the ingestion normalizer with its collaborators
//     (blob writer, Drive archival, Telegram notifier, event queue)
//  4. Serves the n8n webhook and the VAT file API
//  5. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nhat010104/vat-invoice-hub/internal/archive"
	"github.com/nhat010104/vat-invoice-hub/internal/blob"
	"github.com/nhat010104/vat-invoice-hub/internal/config"
	"github.com/nhat010104/vat-invoice-hub/internal/ingest"
	"github.com/nhat010104/vat-invoice-hub/internal/notify"
	"github.com/nhat010104/vat-invoice-hub/internal/queue"
	"github.com/nhat010104/vat-invoice-hub/internal/store"
	"github.com/nhat010104/vat-invoice-hub/internal/webhook"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("starting VAT ingestion service")

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"upload_dir", cfg.UploadDir,
		"archival", cfg.ArchivalEnabled,
		"notifications", cfg.NotifyEnabled,
		"event_queue", cfg.QueueEnabled,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Connect to PostgreSQL ---
	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	if err := pgPool.Ping(ctx); err != nil {
		slog.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to PostgreSQL")

	records, err := store.NewStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise record store", "error", err)
		os.Exit(1)
	}

	// --- Blob Writer ---
	blobs, err := blob.NewWriter(cfg.UploadDir)
	if err != nil {
		slog.Error("failed to initialise upload directory", "error", err)
		os.Exit(1)
	}

	// --- Optional collaborators, decided once at startup ---
	var archiver ingest.Archiver
	if cfg.ArchivalEnabled {
		archiver = archive.NewDriveClient(ctx, archive.Config{
			ClientEmail: cfg.Drive.ClientEmail,
			PrivateKey:  cfg.Drive.PrivateKey,
			FolderID:    cfg.Drive.FolderID,
		})
		slog.Info("drive archival enabled", "folder", cfg.Drive.FolderID)
	}

	var notifier ingest.Notifier
	if cfg.NotifyEnabled {
		notifier = notify.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		slog.Info("telegram notifications enabled")
	}

	var publisher *queue.Publisher
	var events ingest.EventPublisher
	if cfg.QueueEnabled {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		defer rdb.Close()

		publisher = queue.NewPublisher(rdb, cfg.EventQueue)
		if err := publisher.Ping(ctx); err != nil {
			slog.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		events = publisher
		slog.Info("connected to Redis", "queue", cfg.EventQueue)
	}

	// --- Ingestion Normalizer ---
	svc := ingest.NewService(ingest.ServiceConfig{
		Store:   records,
		Blobs:   blobs,
		Archive: archiver,
		Notify:  notifier,
		Events:  events,
	})

	// --- HTTP Surface ---
	handler := webhook.NewHandler(webhook.HandlerConfig{
		Ingestor:    svc,
		Records:     records,
		Blobs:       blobs,
		Archive:     archiver,
		Notify:      notifier,
		MaxUploadMB: cfg.MaxUploadMB,
	})
	auth := webhook.NewAuth(cfg.Auth)

	health := func(w http.ResponseWriter, r *http.Request) {
		if err := pgPool.Ping(r.Context()); err != nil {
			http.Error(w, "postgres unhealthy", http.StatusServiceUnavailable)
			return
		}
		if publisher != nil {
			if err := publisher.Ping(r.Context()); err != nil {
				http.Error(w, "redis unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy"}`))
	}

	router := webhook.NewRouter(handler, auth, health)

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  5 * time.Minute, // large base64 bodies from n8n
		WriteTimeout: 5 * time.Minute,
	}

	// --- Graceful Shutdown ---
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh

		slog.Info("received shutdown signal", "signal", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("ingestion service listening", "addr", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("ingestion service stopped")
}
