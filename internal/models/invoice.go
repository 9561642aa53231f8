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

// Package models defines the data structures shared across the VAT
// ingestion service.
package models

import "time"

// Invoice status values.
const (
	StatusPending   = "pending"
	StatusProcessed = "processed"
)

// Default sender/source used when an automation payload carries no
// sender identity. These match the values the n8n workflows expect
// to read back.
const (
	DefaultSender = "n8n@automation"
	DefaultSource = "n8n"
)

// Invoice is the header record created once per ingestion. It is never
// mutated after creation.
type Invoice struct {
	ID           string    `json:"id"`
	SenderEmail  string    `json:"senderEmail"`
	Subject      string    `json:"subject"`
	ReceivedDate time.Time `json:"receivedDate"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
}

// VatFile is the file record attached to an invoice.
//
// LocalPath holds only a filename under the upload directory, never a
// full path, or, after a failed remote fetch, the literal source URL.
// Empty means no bytes were ever obtained for this record.
type VatFile struct {
	ID            string         `json:"id"`
	InvoiceID     string         `json:"invoiceId"`
	FileName      string         `json:"fileName"`
	LocalPath     string         `json:"localPath,omitempty"`
	DriveFileID   string         `json:"driveFileId,omitempty"`
	Source        string         `json:"source"`
	UploadedDate  time.Time      `json:"uploadedDate"`
	ExtractedData map[string]any `json:"extractedData"`
	IsPublished   bool           `json:"isPublished"`
}
