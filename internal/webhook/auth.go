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

package webhook

import (
	"log/slog"
	"net/http"

	"github.com/nhat010104/vat-invoice-hub/internal/config"
)

// Auth guards the API endpoints. n8n workflows authenticate with either
// Basic Auth (preferred, from the workflow's credential node) or an API
// key in the X-API-Key header / apiKey query parameter.
type Auth struct {
	cfg config.WebhookAuthConfig
}

// NewAuth creates the auth middleware from webhook credentials.
func NewAuth(cfg config.WebhookAuthConfig) *Auth {
	if cfg.APIKey == "" && cfg.BasicUsername == "" && cfg.BasicPassword == "" {
		slog.Warn("no webhook authentication configured, allowing all requests")
	}
	return &Auth{cfg: cfg}
}

// Wrap enforces authentication before invoking next.
func (a *Auth) Wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Nothing configured: open endpoint (development only).
		if a.cfg.APIKey == "" && a.cfg.BasicUsername == "" && a.cfg.BasicPassword == "" {
			next(w, r)
			return
		}

		// Basic Auth wins when configured.
		if a.cfg.BasicUsername != "" && a.cfg.BasicPassword != "" {
			user, pass, ok := r.BasicAuth()
			if !ok {
				writeJSON(w, http.StatusUnauthorized, response{
					Success: false,
					Message: "Basic authentication required",
				})
				return
			}
			if user != a.cfg.BasicUsername || pass != a.cfg.BasicPassword {
				writeJSON(w, http.StatusForbidden, response{
					Success: false,
					Message: "Invalid Basic Auth credentials",
				})
				return
			}
			next(w, r)
			return
		}

		// API key fallback.
		provided := r.Header.Get("X-API-Key")
		if provided == "" {
			provided = r.URL.Query().Get("apiKey")
		}
		if provided == "" {
			writeJSON(w, http.StatusUnauthorized, response{
				Success: false,
				Message: "API key is required. Provide it in header: X-API-Key or query: ?apiKey=YOUR_KEY",
			})
			return
		}
		if provided != a.cfg.APIKey {
			writeJSON(w, http.StatusForbidden, response{
				Success: false,
				Message: "Invalid API key",
			})
			return
		}
		next(w, r)
	}
}
