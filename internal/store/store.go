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

// Package store provides the Postgres-backed record store for invoice
// headers and VAT file records.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nhat010104/vat-invoice-hub/internal/models"
)

// Store provides create/read operations for invoices and vat_files.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a record store backed by the given Postgres pool.
// It ensures the schema exists on creation.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure invoice schema: %w", err)
	}
	slog.Info("record store initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS invoices (
			id            TEXT PRIMARY KEY,
			sender_email  TEXT NOT NULL DEFAULT '',
			subject       TEXT NOT NULL DEFAULT '',
			received_date TIMESTAMPTZ NOT NULL,
			status        TEXT NOT NULL DEFAULT 'pending',
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS vat_files (
			id             TEXT PRIMARY KEY,
			invoice_id     TEXT NOT NULL REFERENCES invoices(id),
			file_name      TEXT NOT NULL,
			local_path     TEXT,
			drive_file_id  TEXT,
			source         TEXT NOT NULL DEFAULT '',
			uploaded_date  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			extracted_data JSONB NOT NULL DEFAULT '{}',
			is_published   BOOLEAN NOT NULL DEFAULT FALSE
		);
		CREATE INDEX IF NOT EXISTS idx_vat_files_invoice ON vat_files(invoice_id);
		CREATE INDEX IF NOT EXISTS idx_vat_files_uploaded ON vat_files(uploaded_date DESC);
	`)
	return err
}

// CreateInvoice inserts an invoice header, assigning its ID and
// creation timestamp.
func (s *Store) CreateInvoice(ctx context.Context, inv *models.Invoice) error {
	inv.ID = uuid.New().String()
	inv.CreatedAt = time.Now().UTC()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO invoices (id, sender_email, subject, received_date, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, inv.ID, inv.SenderEmail, inv.Subject, inv.ReceivedDate, inv.Status, inv.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert invoice: %w", err)
	}
	return nil
}

// CreateVatFile inserts a file record, assigning its ID. LocalPath and
// DriveFileID are stored as NULL when empty.
func (s *Store) CreateVatFile(ctx context.Context, vf *models.VatFile) error {
	vf.ID = uuid.New().String()
	extracted, err := json.Marshal(orEmpty(vf.ExtractedData))
	if err != nil {
		return fmt.Errorf("marshal extracted data: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO vat_files
			(id, invoice_id, file_name, local_path, drive_file_id,
			 source, uploaded_date, extracted_data, is_published)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8, $9)
	`, vf.ID, vf.InvoiceID, vf.FileName, vf.LocalPath, vf.DriveFileID,
		vf.Source, vf.UploadedDate, string(extracted), vf.IsPublished)
	if err != nil {
		return fmt.Errorf("insert vat file: %w", err)
	}
	return nil
}

// VatFileWithInvoice joins a file record with its owning invoice header
// for the list/detail endpoints.
type VatFileWithInvoice struct {
	models.VatFile
	Invoice models.Invoice `json:"invoice"`
}

const vatFileColumns = `
	v.id, v.invoice_id, v.file_name, COALESCE(v.local_path, ''),
	COALESCE(v.drive_file_id, ''), v.source, v.uploaded_date,
	v.extracted_data, v.is_published,
	i.id, i.sender_email, i.subject, i.received_date, i.status, i.created_at
`

// ListVatFiles returns all file records newest-first with their invoices.
func (s *Store) ListVatFiles(ctx context.Context) ([]VatFileWithInvoice, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+vatFileColumns+`
		FROM vat_files v
		JOIN invoices i ON i.id = v.invoice_id
		ORDER BY v.uploaded_date DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []VatFileWithInvoice
	for rows.Next() {
		item, err := scanVatFile(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// GetVatFile returns one file record by ID, or nil if it does not exist.
func (s *Store) GetVatFile(ctx context.Context, id string) (*VatFileWithInvoice, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+vatFileColumns+`
		FROM vat_files v
		JOIN invoices i ON i.id = v.invoice_id
		WHERE v.id = $1
	`, id)
	item, err := scanVatFile(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// MarkPublished flips is_published on a file record. Returns false when
// the record does not exist.
func (s *Store) MarkPublished(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE vat_files SET is_published = TRUE WHERE id = $1
	`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// NormalizeLocalPaths strips directory prefixes from legacy local_path
// values, leaving bare filenames. URL references are left untouched.
// Used by cmd/fixpaths; returns the number of rows rewritten.
func (s *Store) NormalizeLocalPaths(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE vat_files
		SET local_path = regexp_replace(local_path, '^.*/', '')
		WHERE local_path IS NOT NULL
		  AND local_path LIKE '%/%'
		  AND local_path NOT LIKE 'http://%'
		  AND local_path NOT LIKE 'https://%'
	`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanVatFile(row pgx.Row) (*VatFileWithInvoice, error) {
	var item VatFileWithInvoice
	var extracted []byte
	err := row.Scan(
		&item.VatFile.ID, &item.InvoiceID, &item.FileName, &item.LocalPath,
		&item.DriveFileID, &item.Source, &item.UploadedDate,
		&extracted, &item.IsPublished,
		&item.Invoice.ID, &item.Invoice.SenderEmail, &item.Invoice.Subject,
		&item.Invoice.ReceivedDate, &item.Invoice.Status, &item.Invoice.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(extracted, &item.ExtractedData); err != nil {
		return nil, fmt.Errorf("unmarshal extracted data: %w", err)
	}
	return &item, nil
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
