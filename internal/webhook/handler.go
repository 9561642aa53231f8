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

// Package webhook serves the HTTP surface of the VAT ingestion service:
// the n8n automation webhook, the authenticated multipart upload path,
// and the listing/publish endpoints the frontend consumes.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gorilla/mux"

	"github.com/nhat010104/vat-invoice-hub/internal/ingest"
	"github.com/nhat010104/vat-invoice-hub/internal/models"
	"github.com/nhat010104/vat-invoice-hub/internal/store"
)

// Ingestor normalizes one webhook payload into persisted records.
type Ingestor interface {
	Ingest(ctx context.Context, payload map[string]any) (*ingest.Result, error)
}

// Records is the record-store surface the HTTP layer needs.
type Records interface {
	ingest.RecordStore
	ListVatFiles(ctx context.Context) ([]store.VatFileWithInvoice, error)
	GetVatFile(ctx context.Context, id string) (*store.VatFileWithInvoice, error)
	MarkPublished(ctx context.Context, id string) (bool, error)
}

// Handler serves the VAT API endpoints.
type Handler struct {
	ingestor Ingestor
	records  Records
	blobs    ingest.BlobWriter
	archive  ingest.Archiver // nil when archival is not configured
	notify   ingest.Notifier // nil when notifications are not configured
	maxBody  int64
}

// HandlerConfig holds dependencies for a Handler.
type HandlerConfig struct {
	Ingestor Ingestor
	Records  Records
	Blobs    ingest.BlobWriter
	Archive  ingest.Archiver
	Notify   ingest.Notifier
	// MaxUploadMB bounds both JSON webhook bodies (base64 payloads from
	// n8n can be large) and multipart uploads.
	MaxUploadMB int
}

// NewHandler creates the API handler.
func NewHandler(cfg HandlerConfig) *Handler {
	maxMB := cfg.MaxUploadMB
	if maxMB <= 0 {
		maxMB = 50
	}
	return &Handler{
		ingestor: cfg.Ingestor,
		records:  cfg.Records,
		blobs:    cfg.Blobs,
		archive:  cfg.Archive,
		notify:   cfg.Notify,
		maxBody:  int64(maxMB) << 20,
	}
}

// response is the JSON envelope every endpoint returns.
type response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// NewRouter wires the API routes. All routes go through the auth
// middleware except the health check and the file downloads the
// frontend links to directly.
func NewRouter(h *Handler, auth *Auth, health http.HandlerFunc) *mux.Router {
	r := mux.NewRouter()
	r.Use(recoverMiddleware)

	r.HandleFunc("/api/vat/webhook", auth.Wrap(h.ServeWebhook)).Methods(http.MethodPost)
	r.HandleFunc("/api/vat/webhook", h.ServeWebhookProbe).Methods(http.MethodGet)
	r.HandleFunc("/api/vat/upload", auth.Wrap(h.ServeUpload)).Methods(http.MethodPost)
	r.HandleFunc("/api/vat", auth.Wrap(h.ServeList)).Methods(http.MethodGet)
	r.HandleFunc("/api/vat/{id}", auth.Wrap(h.ServeGet)).Methods(http.MethodGet)
	r.HandleFunc("/api/vat/{id}/publish", auth.Wrap(h.ServePublish)).Methods(http.MethodPut)
	r.HandleFunc("/uploads/{name}", h.ServeFile).Methods(http.MethodGet)
	r.HandleFunc("/health", health).Methods(http.MethodGet)

	return r
}

// ServeWebhook handles the n8n ingestion webhook.
func (h *Handler) ServeWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, response{Success: false, Message: "request body unreadable or too large"})
		return
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, response{Success: false, Message: "request body must be a JSON object"})
		return
	}

	result, err := h.ingestor.Ingest(r.Context(), payload)
	if err != nil {
		status := http.StatusInternalServerError
		if ingest.IsClientError(err) {
			status = http.StatusBadRequest
		} else {
			slog.Error("webhook ingestion failed", "error", err)
		}
		writeJSON(w, status, response{Success: false, Message: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, response{
		Success: true,
		Message: "Invoice received and processed successfully",
		Data: map[string]any{
			"invoice": map[string]any{
				"id":           result.Invoice.ID,
				"senderEmail":  result.Invoice.SenderEmail,
				"subject":      result.Invoice.Subject,
				"receivedDate": result.Invoice.ReceivedDate,
			},
			"vatFile": map[string]any{
				"id":          result.VatFile.ID,
				"fileName":    result.VatFile.FileName,
				"source":      result.VatFile.Source,
				"isPublished": result.VatFile.IsPublished,
			},
		},
	})
}

// ServeWebhookProbe answers GETs on the webhook path so workflow
// authors can check reachability from the n8n editor.
func (h *Handler) ServeWebhookProbe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, response{
		Success: true,
		Message: "Webhook endpoint is reachable. Please use POST method for actual webhook calls.",
	})
}

// allowedUploadTypes are the MIME types accepted on the manual upload path.
var allowedUploadTypes = map[string]bool{
	"application/pdf": true,
	"image/jpeg":      true,
	"image/png":       true,
}

// ServeUpload handles the manual multipart upload path used by the
// frontend. Unlike the webhook it creates invoices in "pending" state:
// a person still has to review them.
func (h *Handler) ServeUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	if err := r.ParseMultipartForm(h.maxBody); err != nil {
		writeJSON(w, http.StatusBadRequest, response{Success: false, Message: "invalid multipart form"})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, response{Success: false, Message: "File is required"})
		return
	}
	defer file.Close()

	mimeType := header.Header.Get("Content-Type")
	if !allowedUploadTypes[mimeType] {
		writeJSON(w, http.StatusBadRequest, response{Success: false, Message: "Only PDF / JPG / PNG allowed"})
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, response{Success: false, Message: "failed to read uploaded file"})
		return
	}

	name := h.blobs.UniqueName(header.Filename)
	if err := h.blobs.Write(name, data); err != nil {
		slog.Error("upload local write failed", "name", name, "error", err)
		writeJSON(w, http.StatusInternalServerError, response{Success: false, Message: "failed to store file"})
		return
	}

	senderEmail := r.FormValue("senderEmail")
	if senderEmail == "" {
		senderEmail = "unknown"
	}
	subject := r.FormValue("subject")
	if subject == "" {
		subject = header.Filename
	}
	receivedDate := time.Now()
	if raw := r.FormValue("receivedDate"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			receivedDate = ts
		}
	}

	inv := &models.Invoice{
		SenderEmail:  senderEmail,
		Subject:      subject,
		ReceivedDate: receivedDate,
		Status:       models.StatusPending,
	}
	if err := h.records.CreateInvoice(r.Context(), inv); err != nil {
		slog.Error("create invoice failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, response{Success: false, Message: err.Error()})
		return
	}

	driveFileID := ""
	if h.archive != nil {
		id, err := h.archive.Upload(r.Context(), data, name, mimeType)
		if err != nil {
			slog.Error("drive upload failed", "name", name, "error", err)
		} else {
			driveFileID = id
		}
	}

	vf := &models.VatFile{
		InvoiceID:    inv.ID,
		FileName:     header.Filename,
		LocalPath:    name,
		DriveFileID:  driveFileID,
		Source:       senderEmail,
		UploadedDate: time.Now(),
	}
	if err := h.records.CreateVatFile(r.Context(), vf); err != nil {
		slog.Error("create vat file failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, response{Success: false, Message: err.Error()})
		return
	}

	h.sendNotification(r.Context(), fmt.Sprintf(
		"New VAT uploaded:\nFile: %s\nDate: %s\nSource: %s",
		vf.FileName, inv.ReceivedDate.Format(time.RFC3339), vf.Source,
	))

	writeJSON(w, http.StatusOK, response{
		Success: true,
		Message: "Uploaded",
		Data:    map[string]any{"invoice": inv, "vatFile": vf},
	})
}

// ServeFile serves stored attachment bytes back. The frontend builds
// download links straight from localPath filenames, so the path mirrors
// the upload directory. Names are reduced to their base before lookup;
// a record whose localPath is a fallback URL never resolves here.
func (h *Handler) ServeFile(w http.ResponseWriter, r *http.Request) {
	name := filepath.Base(mux.Vars(r)["name"])
	data, err := h.blobs.ReadFile(name)
	if err != nil {
		writeJSON(w, http.StatusNotFound, response{Success: false, Message: "Not found"})
		return
	}

	mimeType := mime.TypeByExtension(filepath.Ext(name))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", mimeType)
	w.Write(data)
}

// ServeList returns all VAT files, newest first.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	items, err := h.records.ListVatFiles(r.Context())
	if err != nil {
		slog.Error("list vat files failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, response{Success: false, Message: err.Error()})
		return
	}
	if items == nil {
		items = []store.VatFileWithInvoice{}
	}
	writeJSON(w, http.StatusOK, response{Success: true, Message: "OK", Data: items})
}

// ServeGet returns one VAT file by ID.
func (h *Handler) ServeGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	item, err := h.records.GetVatFile(r.Context(), id)
	if err != nil {
		slog.Error("get vat file failed", "id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, response{Success: false, Message: err.Error()})
		return
	}
	if item == nil {
		writeJSON(w, http.StatusNotFound, response{Success: false, Message: "Not found"})
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Message: "OK", Data: item})
}

// ServePublish marks a VAT file as published.
func (h *Handler) ServePublish(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ok, err := h.records.MarkPublished(r.Context(), id)
	if err != nil {
		slog.Error("publish vat file failed", "id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, response{Success: false, Message: err.Error()})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, response{Success: false, Message: "Not found"})
		return
	}

	item, err := h.records.GetVatFile(r.Context(), id)
	if err != nil || item == nil {
		writeJSON(w, http.StatusOK, response{Success: true, Message: "Published"})
		return
	}

	h.sendNotification(r.Context(), "VAT published: "+item.FileName)

	writeJSON(w, http.StatusOK, response{Success: true, Message: "Published", Data: item})
}

// sendNotification fires a best-effort Telegram message.
func (h *Handler) sendNotification(ctx context.Context, text string) {
	if h.notify == nil {
		return
	}
	if err := h.notify.Send(ctx, text); err != nil {
		slog.Error("telegram notification failed", "error", err)
	}
}

// recoverMiddleware is the outermost boundary: an unexpected panic in a
// handler is logged with full detail and answered with a generic 500.
// The process never dies on a single bad request.
func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("panic in request handler",
					"method", r.Method,
					"path", r.URL.Path,
					"panic", rec,
				)
				writeJSON(w, http.StatusInternalServerError, response{
					Success: false,
					Message: "Internal server error",
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, body response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("write response failed", "error", err)
	}
}
