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

package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestSend verifies the Bot API request path and payload.
func TestSend(t *testing.T) {
	var gotPath string
	var gotPayload map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotPayload)
		w.Write([]byte(`{"ok": true}`))
	}))
	defer server.Close()

	n := NewTelegramNotifier("bot-token", "chat-42")
	n.apiBaseURL = server.URL
	n.httpClient = server.Client()

	if err := n.Send(context.Background(), "New VAT from n8n"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if gotPath != "/botbot-token/sendMessage" {
		t.Errorf("path = %q", gotPath)
	}
	if gotPayload["chat_id"] != "chat-42" {
		t.Errorf("chat_id = %q", gotPayload["chat_id"])
	}
	if gotPayload["text"] != "New VAT from n8n" {
		t.Errorf("text = %q", gotPayload["text"])
	}
}

// TestSend_APIError verifies a non-200 from the Bot API is returned as
// an error for the caller to log and discard.
func TestSend_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"ok": false}`, http.StatusBadRequest)
	}))
	defer server.Close()

	n := NewTelegramNotifier("t", "c")
	n.apiBaseURL = server.URL
	n.httpClient = server.Client()

	if err := n.Send(context.Background(), "x"); err == nil {
		t.Fatal("expected error for HTTP 400")
	}
}
