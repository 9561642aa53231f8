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

package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/nhat010104/vat-invoice-hub/internal/models"
)

// RecordStore persists invoice headers and their file records.
type RecordStore interface {
	CreateInvoice(ctx context.Context, inv *models.Invoice) error
	CreateVatFile(ctx context.Context, vf *models.VatFile) error
}

// BlobWriter writes attachment bytes into the local upload area and
// fetches remote URLs into it.
type BlobWriter interface {
	// UniqueName derives a collision-resistant filename from a display name.
	UniqueName(displayName string) string
	Write(name string, data []byte) error
	// Fetch streams url into name, removing any partial file on
	// failure, and returns the media type the server declared.
	Fetch(ctx context.Context, url, name string) (string, error)
	ReadFile(name string) ([]byte, error)
}

// Archiver uploads a redundant copy to remote storage (Google Drive).
type Archiver interface {
	Upload(ctx context.Context, data []byte, name, mimeType string) (string, error)
}

// Notifier sends a short human-readable message about an ingested file.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// EventPublisher announces an ingested file to the downstream
// processing queue.
type EventPublisher interface {
	PublishVatIngested(ctx context.Context, vf *models.VatFile) error
}

// Service is the ingestion normalizer. Archive, Notify and Events may
// be nil; a nil collaborator means the capability is not configured and
// the corresponding side effect is skipped. That decision is made once
// at startup, not re-checked against the environment per call.
type Service struct {
	store   RecordStore
	blobs   BlobWriter
	archive Archiver
	notify  Notifier
	events  EventPublisher
	now     func() time.Time
}

// ServiceConfig holds the collaborators for a Service.
type ServiceConfig struct {
	Store   RecordStore
	Blobs   BlobWriter
	Archive Archiver
	Notify  Notifier
	Events  EventPublisher
}

// NewService creates the ingestion normalizer.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		store:   cfg.Store,
		blobs:   cfg.Blobs,
		archive: cfg.Archive,
		notify:  cfg.Notify,
		events:  cfg.Events,
		now:     time.Now,
	}
}

// Result echoes the persisted records back to the webhook caller.
type Result struct {
	Invoice *models.Invoice
	VatFile *models.VatFile
}

// Ingest normalizes one webhook payload into an invoice + file record.
//
// Order matters: validation and decoding happen before any write, the
// local write happens before the records that reference it are created,
// and archival/notification failures never abort the call. A crash
// mid-sequence can orphan a local file but can never leave a record
// pointing at a file that does not exist.
func (s *Service) Ingest(ctx context.Context, payload map[string]any) (*Result, error) {
	att, err := ResolveAttachment(payload)
	if err != nil {
		return nil, err
	}

	fields := ResolveFields(payload, s.now())
	if fields.FileName == "" {
		fields.FileName = att.FileName
	}
	if fields.FileName == "" {
		return nil, &ValidationError{Field: "fileName", Reason: "is required"}
	}
	fields.ApplyDefaults()

	localPath, driveFileID, err := s.storeAttachment(ctx, att, fields.FileName)
	if err != nil {
		return nil, err
	}

	inv := &models.Invoice{
		SenderEmail:  fields.SenderEmail,
		Subject:      fields.Subject,
		ReceivedDate: fields.ReceivedDate,
		Status:       models.StatusProcessed,
	}
	if err := s.store.CreateInvoice(ctx, inv); err != nil {
		return nil, err
	}

	vf := &models.VatFile{
		InvoiceID:     inv.ID,
		FileName:      fields.FileName,
		LocalPath:     localPath,
		DriveFileID:   driveFileID,
		Source:        fields.Source,
		UploadedDate:  s.now(),
		ExtractedData: fields.ExtractedData,
		IsPublished:   fields.IsPublished,
	}
	if err := s.store.CreateVatFile(ctx, vf); err != nil {
		return nil, err
	}

	s.announce(ctx, inv, vf)

	return &Result{Invoice: inv, VatFile: vf}, nil
}

// storeAttachment writes the resolved attachment (if any) into the
// upload area and attempts remote archival. It returns the value to
// persist as localPath plus the Drive file ID; both may be empty.
// Only a failed local write of decoded bytes is fatal: the local copy
// is the durable source of truth for the record about to be created.
func (s *Service) storeAttachment(ctx context.Context, att Attachment, displayName string) (localPath, driveFileID string, err error) {
	switch att.Shape {
	case ShapeNone:
		slog.Warn("payload carried no attachment, ingesting file-less record",
			"file_name", displayName,
		)
		return "", "", nil

	case ShapeRemoteURL:
		name := s.blobs.UniqueName(displayName)
		contentType, err := s.blobs.Fetch(ctx, att.URL, name)
		if err != nil {
			// Degraded outcome: keep the literal URL as the file
			// reference so the record is still usable.
			slog.Error("remote fetch failed, storing source URL as file reference",
				"url", att.URL,
				"error", err,
			)
			return att.URL, "", nil
		}
		mimeType := att.MimeType
		if contentType != "" {
			mimeType = contentType
		}
		data, err := s.blobs.ReadFile(name)
		if err != nil {
			slog.Error("read back fetched file for archival", "name", name, "error", err)
			return name, "", nil
		}
		return name, s.archiveCopy(ctx, data, name, mimeType), nil

	default:
		name := s.blobs.UniqueName(displayName)
		if err := s.blobs.Write(name, att.Data); err != nil {
			return "", "", err
		}
		return name, s.archiveCopy(ctx, att.Data, name, att.MimeType), nil
	}
}

// archiveCopy uploads the bytes to remote storage. Entirely best-effort:
// the local copy is the source of truth and archival failure (or the
// archiver not being configured) never aborts ingestion.
func (s *Service) archiveCopy(ctx context.Context, data []byte, name, mimeType string) string {
	if s.archive == nil {
		return ""
	}
	id, err := s.archive.Upload(ctx, data, name, mimeType)
	if err != nil {
		slog.Error("drive upload failed", "name", name, "error", err)
		return ""
	}
	return id
}

// announce fires the best-effort side effects after both records are
// durably committed.
func (s *Service) announce(ctx context.Context, inv *models.Invoice, vf *models.VatFile) {
	if s.events != nil {
		if err := s.events.PublishVatIngested(ctx, vf); err != nil {
			slog.Error("publish ingestion event failed", "vat_file", vf.ID, "error", err)
		}
	}
	if s.notify != nil {
		text := "New VAT from n8n:\nFile: " + vf.FileName +
			"\nDate: " + inv.ReceivedDate.Format(time.RFC3339) +
			"\nSource: " + vf.Source
		if err := s.notify.Send(ctx, text); err != nil {
			slog.Error("telegram notification failed", "vat_file", vf.ID, "error", err)
		}
	}
}
