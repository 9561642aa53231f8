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

// Package queue publishes ingestion events to Redis for the downstream
// processing pipeline (OCR, sheet export, website publishing). Delivery
// is best-effort: the webhook response never waits on a consumer.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/nhat010104/vat-invoice-hub/internal/models"
)

// Publisher sends VAT file events to a Redis list.
type Publisher struct {
	rdb       *redis.Client
	queueName string
}

// NewPublisher creates a publisher targeting the specified queue.
func NewPublisher(rdb *redis.Client, queueName string) *Publisher {
	return &Publisher{
		rdb:       rdb,
		queueName: queueName,
	}
}

// vatEvent is the envelope consumers pop from the queue.
type vatEvent struct {
	ID         string          `json:"id"`
	Event      string          `json:"event"`
	OccurredAt string          `json:"occurred_at"`
	VatFile    *models.VatFile `json:"vat_file"`
}

// PublishVatIngested announces a newly persisted VAT file.
func (p *Publisher) PublishVatIngested(ctx context.Context, vf *models.VatFile) error {
	event := vatEvent{
		ID:         uuid.New().String(),
		Event:      "vat_file.ingested",
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
		VatFile:    vf,
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal vat event: %w", err)
	}

	if err := p.rdb.LPush(ctx, p.queueName, string(eventJSON)).Err(); err != nil {
		return fmt.Errorf("redis LPUSH: %w", err)
	}

	slog.Info("published ingestion event",
		"event_id", event.ID,
		"vat_file", vf.ID,
		"queue", p.queueName,
	)

	return nil
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}
