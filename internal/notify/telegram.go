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

// Package notify sends Telegram messages about ingested VAT files.
// Failures never affect the request that triggered the notification;
// callers log and discard the returned error.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// TelegramNotifier posts messages to a fixed chat via the Bot API.
type TelegramNotifier struct {
	httpClient *http.Client
	apiBaseURL string
	token      string
	chatID     string
}

// NewTelegramNotifier creates a notifier for the given bot and chat.
func NewTelegramNotifier(token, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		apiBaseURL: "https://api.telegram.org",
		token:      token,
		chatID:     chatID,
	}
}

// Send posts one text message.
func (n *TelegramNotifier) Send(ctx context.Context, text string) error {
	payload, err := json.Marshal(map[string]string{
		"chat_id": n.chatID,
		"text":    text,
	})
	if err != nil {
		return fmt.Errorf("marshal telegram message: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.apiBaseURL, n.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram send: HTTP %d", resp.StatusCode)
	}
	return nil
}
