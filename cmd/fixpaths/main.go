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

// fixpaths is a one-shot maintenance command that normalizes legacy
// local_path values. Early revisions stored relative paths including
// the upload directory, which later produced duplicated-path bugs;
// current records store bare filenames only. This rewrites any
// remaining path-shaped values, leaving URL references untouched.
//
// Usage:
//
//	DATABASE_URL=postgres://... fixpaths
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nhat010104/vat-invoice-hub/internal/config"
	"github.com/nhat010104/vat-invoice-hub/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	records, err := store.NewStore(ctx, pool)
	if err != nil {
		slog.Error("failed to initialise record store", "error", err)
		os.Exit(1)
	}

	fixed, err := records.NormalizeLocalPaths(ctx)
	if err != nil {
		slog.Error("normalize local paths failed", "error", err)
		os.Exit(1)
	}

	slog.Info("local paths normalized", "rows_fixed", fixed)
}
