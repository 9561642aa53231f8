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

// Package config loads configuration from config.yaml and environment
// variables. Optional capabilities (Drive archival, Telegram
// notifications, the Redis event queue) are resolved to booleans once
// here; nothing else in the service inspects the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DriveConfig holds Google Drive service-account credentials.
type DriveConfig struct {
	ClientEmail string `yaml:"client_email"`
	PrivateKey  string `yaml:"private_key"`
	FolderID    string `yaml:"folder_id"`
}

// TelegramConfig holds bot credentials for notifications.
type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

// WebhookAuthConfig guards the n8n webhook endpoint. Basic Auth wins
// when both schemes are configured; with neither set the endpoint is
// open (development only).
type WebhookAuthConfig struct {
	APIKey        string `yaml:"api_key"`
	BasicUsername string `yaml:"basic_username"`
	BasicPassword string `yaml:"basic_password"`
}

// Config holds all configuration for the VAT ingestion service.
type Config struct {
	Port        int
	DatabaseURL string
	UploadDir   string
	MaxUploadMB int

	RedisURL   string
	EventQueue string

	Drive    DriveConfig
	Telegram TelegramConfig
	Auth     WebhookAuthConfig

	// Capability flags computed once at load.
	ArchivalEnabled bool
	NotifyEnabled   bool
	QueueEnabled    bool
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Server struct {
		Port      int    `yaml:"port"`
		UploadDir string `yaml:"upload_dir"`
		MaxMB     int    `yaml:"max_upload_mb"`
	} `yaml:"server"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Redis struct {
		URL    string `yaml:"url"`
		Queues struct {
			Events string `yaml:"events"`
		} `yaml:"queues"`
	} `yaml:"redis"`
	Drive    DriveConfig       `yaml:"drive"`
	Telegram TelegramConfig    `yaml:"telegram"`
	Webhook  WebhookAuthConfig `yaml:"webhook"`
}

// Load reads configuration from config.yaml (with env var expansion)
// and environment variables for non-YAML settings. The YAML file is
// optional; a missing file falls back to env vars entirely.
func Load() (*Config, error) {
	configPath := envOrDefault("CONFIG_PATH", "config.yaml")

	var raw rawConfig
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		// Expand ${VAR} references in the YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parse config YAML: %w", err)
		}
	case os.IsNotExist(err):
		// env-only deployment
	default:
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	cfg := &Config{
		Port:        firstNonZero(raw.Server.Port, envOrDefaultInt("PORT", 4000)),
		DatabaseURL: firstNonEmpty(raw.Database.URL, os.Getenv("DATABASE_URL")),
		UploadDir:   firstNonEmpty(raw.Server.UploadDir, envOrDefault("UPLOAD_DIR", "uploads/vat_files")),
		MaxUploadMB: firstNonZero(raw.Server.MaxMB, envOrDefaultInt("FILE_MAX_SIZE_MB", 50)),
		RedisURL:    firstNonEmpty(raw.Redis.URL, os.Getenv("REDIS_URL")),
		EventQueue:  firstNonEmpty(raw.Redis.Queues.Events, envOrDefault("EVENTS_QUEUE", "vat_events")),
		Drive: DriveConfig{
			ClientEmail: firstNonEmpty(raw.Drive.ClientEmail, os.Getenv("GOOGLE_CLIENT_EMAIL")),
			PrivateKey:  firstNonEmpty(raw.Drive.PrivateKey, os.Getenv("GOOGLE_PRIVATE_KEY")),
			FolderID:    firstNonEmpty(raw.Drive.FolderID, os.Getenv("GOOGLE_DRIVE_FOLDER_ID")),
		},
		Telegram: TelegramConfig{
			BotToken: firstNonEmpty(raw.Telegram.BotToken, os.Getenv("TELEGRAM_BOT_TOKEN")),
			ChatID:   firstNonEmpty(raw.Telegram.ChatID, os.Getenv("TELEGRAM_CHAT_ID")),
		},
		Auth: WebhookAuthConfig{
			APIKey:        firstNonEmpty(raw.Webhook.APIKey, os.Getenv("N8N_API_KEY")),
			BasicUsername: firstNonEmpty(raw.Webhook.BasicUsername, os.Getenv("N8N_BASIC_AUTH_USERNAME")),
			BasicPassword: firstNonEmpty(raw.Webhook.BasicPassword, os.Getenv("N8N_BASIC_AUTH_PASSWORD")),
		},
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("database URL is required: set database.url or DATABASE_URL")
	}

	cfg.ArchivalEnabled = cfg.Drive.ClientEmail != "" && cfg.Drive.PrivateKey != ""
	cfg.NotifyEnabled = cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != ""
	cfg.QueueEnabled = cfg.RedisURL != ""

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstNonZero(values ...int) int {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}
