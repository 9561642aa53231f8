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
	"errors"
	"fmt"
	"testing"

	"github.com/nhat010104/vat-invoice-hub/internal/models"
)

// mockStore records created entities in order.
type mockStore struct {
	invoices   []*models.Invoice
	vatFiles   []*models.VatFile
	order      []string
	invoiceErr error
	vatFileErr error
}

func (m *mockStore) CreateInvoice(_ context.Context, inv *models.Invoice) error {
	if m.invoiceErr != nil {
		return m.invoiceErr
	}
	inv.ID = fmt.Sprintf("inv-%d", len(m.invoices)+1)
	m.invoices = append(m.invoices, inv)
	m.order = append(m.order, "invoice")
	return nil
}

func (m *mockStore) CreateVatFile(_ context.Context, vf *models.VatFile) error {
	if m.vatFileErr != nil {
		return m.vatFileErr
	}
	vf.ID = fmt.Sprintf("vat-%d", len(m.vatFiles)+1)
	m.vatFiles = append(m.vatFiles, vf)
	m.order = append(m.order, "vatFile")
	return nil
}

// mockBlobs is an in-memory blob writer.
type mockBlobs struct {
	files     map[string][]byte
	names     int
	fetchType string
	fetchErr  error
	writeErr  error
}

func newMockBlobs() *mockBlobs {
	return &mockBlobs{files: map[string][]byte{}}
}

func (m *mockBlobs) UniqueName(displayName string) string {
	m.names++
	return fmt.Sprintf("%d-%s", m.names, displayName)
}

func (m *mockBlobs) Write(name string, data []byte) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	m.files[name] = data
	return nil
}

func (m *mockBlobs) Fetch(_ context.Context, url, name string) (string, error) {
	if m.fetchErr != nil {
		return "", m.fetchErr
	}
	m.files[name] = []byte("fetched:" + url)
	return m.fetchType, nil
}

func (m *mockBlobs) ReadFile(name string) ([]byte, error) {
	data, ok := m.files[name]
	if !ok {
		return nil, errors.New("no such file")
	}
	return data, nil
}

type mockArchiver struct {
	uploads []string
	mimes   []string
	err     error
}

func (m *mockArchiver) Upload(_ context.Context, _ []byte, name, mimeType string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.uploads = append(m.uploads, name)
	m.mimes = append(m.mimes, mimeType)
	return "drive-" + name, nil
}

type mockNotifier struct {
	messages []string
	err      error
}

func (m *mockNotifier) Send(_ context.Context, text string) error {
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, text)
	return nil
}

type mockEvents struct {
	published []string
	err       error
}

func (m *mockEvents) PublishVatIngested(_ context.Context, vf *models.VatFile) error {
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, vf.ID)
	return nil
}

func newTestService(st *mockStore, bl *mockBlobs, ar Archiver, no Notifier, ev EventPublisher) *Service {
	return NewService(ServiceConfig{
		Store:   st,
		Blobs:   bl,
		Archive: ar,
		Notify:  no,
		Events:  ev,
	})
}

// TestIngest_InlineBase64 is the full happy path: decode, local write,
// archival, both records, notification.
func TestIngest_InlineBase64(t *testing.T) {
	st := &mockStore{}
	bl := newMockBlobs()
	ar := &mockArchiver{}
	no := &mockNotifier{}
	ev := &mockEvents{}
	svc := newTestService(st, bl, ar, no, ev)

	result, err := svc.Ingest(context.Background(), map[string]any{
		"fileName": "inv.pdf",
		"fileData": "data:application/pdf;base64," + pdfStub,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.VatFile.FileName != "inv.pdf" {
		t.Errorf("FileName = %q, want inv.pdf", result.VatFile.FileName)
	}
	if result.Invoice.Status != models.StatusProcessed {
		t.Errorf("Status = %q, want processed", result.Invoice.Status)
	}

	// Bytes written locally must round-trip to the decoded payload.
	data, err := bl.ReadFile(result.VatFile.LocalPath)
	if err != nil {
		t.Fatalf("local file missing: %v", err)
	}
	if string(data) != "%PDF-1" {
		t.Errorf("local bytes = %q, want decoded base64", data)
	}

	if result.VatFile.DriveFileID != "drive-"+result.VatFile.LocalPath {
		t.Errorf("DriveFileID = %q", result.VatFile.DriveFileID)
	}
	if len(no.messages) != 1 {
		t.Errorf("notifications sent = %d, want 1", len(no.messages))
	}
	if len(ev.published) != 1 {
		t.Errorf("events published = %d, want 1", len(ev.published))
	}
}

// TestIngest_InvoiceBeforeVatFile verifies creation order: the header
// must exist before the file record that references it.
func TestIngest_InvoiceBeforeVatFile(t *testing.T) {
	st := &mockStore{}
	svc := newTestService(st, newMockBlobs(), nil, nil, nil)

	result, err := svc.Ingest(context.Background(), map[string]any{
		"fileName": "inv.pdf",
		"fileData": pdfStub,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(st.order) != 2 || st.order[0] != "invoice" || st.order[1] != "vatFile" {
		t.Fatalf("creation order = %v", st.order)
	}
	if result.VatFile.InvoiceID != result.Invoice.ID {
		t.Errorf("InvoiceID = %q, want %q", result.VatFile.InvoiceID, result.Invoice.ID)
	}
}

// TestIngest_MissingFileName verifies the only mandatory field.
func TestIngest_MissingFileName(t *testing.T) {
	svc := newTestService(&mockStore{}, newMockBlobs(), nil, nil, nil)

	_, err := svc.Ingest(context.Background(), map[string]any{
		"fileData": pdfStub,
	})

	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if !IsClientError(err) {
		t.Error("ValidationError should be a client error")
	}
}

// TestIngest_DescriptorFileNameFallback verifies an n8n binary
// descriptor's fileName satisfies the mandatory-field check.
func TestIngest_DescriptorFileNameFallback(t *testing.T) {
	st := &mockStore{}
	svc := newTestService(st, newMockBlobs(), nil, nil, nil)

	result, err := svc.Ingest(context.Background(), map[string]any{
		"binary": map[string]any{
			"attachment_0": map[string]any{
				"data":     b64("x"),
				"fileName": "tu-n8n.pdf",
			},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.VatFile.FileName != "tu-n8n.pdf" {
		t.Errorf("FileName = %q, want tu-n8n.pdf", result.VatFile.FileName)
	}
	// Subject defaults to the resolved display name.
	if result.Invoice.Subject != "tu-n8n.pdf" {
		t.Errorf("Subject = %q, want tu-n8n.pdf", result.Invoice.Subject)
	}
}

// TestIngest_NoAttachment verifies a payload with only a display name
// still succeeds with an empty local path.
func TestIngest_NoAttachment(t *testing.T) {
	st := &mockStore{}
	bl := newMockBlobs()
	svc := newTestService(st, bl, nil, nil, nil)

	result, err := svc.Ingest(context.Background(), map[string]any{
		"fileName": "deferred.pdf",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.VatFile.LocalPath != "" {
		t.Errorf("LocalPath = %q, want empty", result.VatFile.LocalPath)
	}
	if len(bl.files) != 0 {
		t.Errorf("no file should have been written, got %d", len(bl.files))
	}
	if len(st.vatFiles) != 1 {
		t.Errorf("vat file not persisted")
	}
}

// TestIngest_RemoteFetchFailure verifies the degraded fallback: the
// literal URL becomes the stored file reference and ingestion succeeds.
func TestIngest_RemoteFetchFailure(t *testing.T) {
	st := &mockStore{}
	bl := newMockBlobs()
	bl.fetchErr = errors.New("HTTP 404")
	svc := newTestService(st, bl, &mockArchiver{}, nil, nil)

	result, err := svc.Ingest(context.Background(), map[string]any{
		"fileName": "inv.pdf",
		"fileUrl":  "http://bad.example/x",
	})
	if err != nil {
		t.Fatalf("ingestion must succeed on fetch failure, got %v", err)
	}
	if result.VatFile.LocalPath != "http://bad.example/x" {
		t.Errorf("LocalPath = %q, want the literal URL", result.VatFile.LocalPath)
	}
	if result.VatFile.DriveFileID != "" {
		t.Errorf("DriveFileID = %q, want empty after failed fetch", result.VatFile.DriveFileID)
	}
}

// TestIngest_RemoteFetchSuccess verifies the fetched file is archived
// under the server-declared media type and referenced by generated name.
func TestIngest_RemoteFetchSuccess(t *testing.T) {
	st := &mockStore{}
	bl := newMockBlobs()
	bl.fetchType = "application/pdf"
	ar := &mockArchiver{}
	svc := newTestService(st, bl, ar, nil, nil)

	result, err := svc.Ingest(context.Background(), map[string]any{
		"fileName": "inv.pdf",
		"fileUrl":  "https://files.example.vn/inv.pdf",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.VatFile.LocalPath != "1-inv.pdf" {
		t.Errorf("LocalPath = %q, want generated name", result.VatFile.LocalPath)
	}
	if len(ar.uploads) != 1 {
		t.Fatalf("archival uploads = %d, want 1", len(ar.uploads))
	}
	if ar.mimes[0] != "application/pdf" {
		t.Errorf("archived mime = %q, want the fetched Content-Type", ar.mimes[0])
	}
}

// TestIngest_RemoteFetchNoContentType verifies archival falls back to
// the generic media type when the server declares none.
func TestIngest_RemoteFetchNoContentType(t *testing.T) {
	bl := newMockBlobs()
	ar := &mockArchiver{}
	svc := newTestService(&mockStore{}, bl, ar, nil, nil)

	_, err := svc.Ingest(context.Background(), map[string]any{
		"fileName": "inv.pdf",
		"fileUrl":  "https://files.example.vn/inv.pdf",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ar.mimes) != 1 || ar.mimes[0] != "application/octet-stream" {
		t.Errorf("archived mimes = %v, want the generic fallback", ar.mimes)
	}
}

// TestIngest_ArchivalFailureTolerated verifies archival is best-effort.
func TestIngest_ArchivalFailureTolerated(t *testing.T) {
	st := &mockStore{}
	ar := &mockArchiver{err: errors.New("drive quota exceeded")}
	svc := newTestService(st, newMockBlobs(), ar, nil, nil)

	result, err := svc.Ingest(context.Background(), map[string]any{
		"fileName": "inv.pdf",
		"fileData": pdfStub,
	})
	if err != nil {
		t.Fatalf("archival failure must not abort ingestion: %v", err)
	}
	if result.VatFile.DriveFileID != "" {
		t.Errorf("DriveFileID = %q, want empty", result.VatFile.DriveFileID)
	}
	if result.VatFile.LocalPath == "" {
		t.Error("local write should still have happened")
	}
}

// TestIngest_SideEffectFailuresTolerated verifies notifier and event
// queue failures never affect the response.
func TestIngest_SideEffectFailuresTolerated(t *testing.T) {
	st := &mockStore{}
	no := &mockNotifier{err: errors.New("telegram down")}
	ev := &mockEvents{err: errors.New("redis down")}
	svc := newTestService(st, newMockBlobs(), nil, no, ev)

	_, err := svc.Ingest(context.Background(), map[string]any{
		"fileName": "inv.pdf",
		"fileData": pdfStub,
	})
	if err != nil {
		t.Fatalf("side-effect failures must not abort ingestion: %v", err)
	}
	if len(st.vatFiles) != 1 {
		t.Error("vat file not persisted")
	}
}

// TestIngest_StoreErrorSurfaces verifies persistence failures reach the
// caller (the handler maps them to 500).
func TestIngest_StoreErrorSurfaces(t *testing.T) {
	t.Run("invoice create fails", func(t *testing.T) {
		st := &mockStore{invoiceErr: errors.New("connection refused")}
		svc := newTestService(st, newMockBlobs(), nil, nil, nil)

		_, err := svc.Ingest(context.Background(), map[string]any{
			"fileName": "inv.pdf",
			"fileData": pdfStub,
		})
		if err == nil || IsClientError(err) {
			t.Fatalf("want server error, got %v", err)
		}
	})

	t.Run("vat file create fails after local write", func(t *testing.T) {
		st := &mockStore{vatFileErr: errors.New("constraint violation")}
		bl := newMockBlobs()
		svc := newTestService(st, bl, nil, nil, nil)

		_, err := svc.Ingest(context.Background(), map[string]any{
			"fileName": "inv.pdf",
			"fileData": pdfStub,
		})
		if err == nil {
			t.Fatal("want error")
		}
		// The already-written local file stays in place: surplus data,
		// never a dangling reference.
		if len(bl.files) != 1 {
			t.Errorf("local file count = %d, want 1", len(bl.files))
		}
	})
}

// TestIngest_DecodeErrorBeforeWrite verifies malformed base64 fails the
// call before anything is written or persisted.
func TestIngest_DecodeErrorBeforeWrite(t *testing.T) {
	st := &mockStore{}
	bl := newMockBlobs()
	svc := newTestService(st, bl, nil, nil, nil)

	_, err := svc.Ingest(context.Background(), map[string]any{
		"fileName": "inv.pdf",
		"fileData": "!!!",
	})

	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
	if len(bl.files) != 0 || len(st.invoices) != 0 {
		t.Error("decode failure must not write or persist anything")
	}
}
