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

// Package ingest normalizes heterogeneous n8n webhook payloads into one
// canonical invoice record plus zero-or-one binary attachment.
//
// The n8n workflows feeding this service were written at different times
// by different people: older ones send Vietnamese field names (tenFile,
// nguoiGui, ...), newer ones English (fileName, senderEmail, ...). Both
// conventions are accepted; the Vietnamese key wins when a payload
// carries both spellings of the same field.
package ingest

import (
	"log/slog"
	"strings"
	"time"

	"github.com/nhat010104/vat-invoice-hub/internal/models"
)

// Fields is the canonical field set resolved from a raw webhook payload.
type Fields struct {
	FileName      string
	SenderEmail   string
	Subject       string
	ReceivedDate  time.Time
	Source        string
	ExtractedData map[string]any
	IsPublished   bool
}

// aliased field pairs: Vietnamese key first, English fallback second.
var fieldAliases = map[string][2]string{
	"fileName":     {"tenFile", "fileName"},
	"senderEmail":  {"nguoiGui", "senderEmail"},
	"receivedDate": {"ngayNhan", "receivedDate"},
	"subject":      {"tieuDe", "subject"},
	"source":       {"nguon", "source"},
	"taxCode":      {"maSoThue", "taxCode"},
	"supplierName": {"nhaCungCap", "supplierName"},
	"invoiceDate":  {"ngayHoaDon", "invoiceDate"},
}

// dualWriteKeys are the fields mirrored into ExtractedData under both
// spellings, so workflows reading either convention see the same data.
var dualWriteKeys = []string{"taxCode", "supplierName", "invoiceDate"}

// ResolveFields resolves a raw payload into the canonical field set.
// It is pure: no side effects beyond debug logging of dropped values.
//
// The only mandatory field is the file display name; its absence is the
// caller's responsibility to turn into a ValidationError once attachment
// fallbacks (a binary descriptor's own fileName) have been exhausted.
func ResolveFields(payload map[string]any, now time.Time) Fields {
	f := Fields{
		FileName:      aliasString(payload, "fileName"),
		SenderEmail:   aliasString(payload, "senderEmail"),
		Subject:       aliasString(payload, "subject"),
		Source:        aliasString(payload, "source"),
		ExtractedData: map[string]any{},
		ReceivedDate:  now,
	}

	if raw := aliasString(payload, "receivedDate"); raw != "" {
		if ts, err := parseDate(raw); err == nil {
			f.ReceivedDate = ts
		} else {
			slog.Warn("unparsable receivedDate, using ingestion time", "value", raw)
		}
	}

	// Structured extracted data, restricted to scalar values.
	if data, ok := aliasValue(payload, "duLieuTrichXuat", "extractedData").(map[string]any); ok {
		for k, v := range data {
			if isScalar(v) {
				f.ExtractedData[k] = v
			} else {
				slog.Debug("dropping non-scalar extractedData value", "key", k)
			}
		}
	}

	// Tax code, supplier and invoice date are written under both the
	// Vietnamese and English keys regardless of which one the caller
	// used. Downstream consumers exist for each convention.
	for _, key := range dualWriteKeys {
		if v := aliasString(payload, key); v != "" {
			f.ExtractedData[fieldAliases[key][0]] = v
			f.ExtractedData[fieldAliases[key][1]] = v
		}
	}

	if v := aliasValue(payload, "daXuatBan", "isPublished"); v != nil {
		if b, ok := v.(bool); ok {
			f.IsPublished = b
		}
	}

	return f
}

// ApplyDefaults fills the optional fields after the attachment has been
// resolved (the subject default needs the final display name). Source
// falls back to the sender as supplied, before the sender sentinel is
// applied, so a fully anonymous payload gets source "n8n" rather than
// the sender sentinel.
func (f *Fields) ApplyDefaults() {
	if f.Source == "" {
		f.Source = f.SenderEmail
	}
	if f.Source == "" {
		f.Source = models.DefaultSource
	}
	if f.SenderEmail == "" {
		f.SenderEmail = models.DefaultSender
	}
	if f.Subject == "" {
		f.Subject = f.FileName
	}
}

// aliasString resolves a canonical field to its string value, preferring
// the Vietnamese key.
func aliasString(payload map[string]any, field string) string {
	keys := fieldAliases[field]
	if s, ok := stringValue(payload[keys[0]]); ok && s != "" {
		return s
	}
	if s, ok := stringValue(payload[keys[1]]); ok {
		return s
	}
	return ""
}

// aliasValue resolves the first non-nil raw value among the given keys.
func aliasValue(payload map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := payload[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func stringValue(v any) (string, bool) {
	s, ok := v.(string)
	return strings.TrimSpace(s), ok
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, float64, int, int64, bool, nil:
		return true
	}
	return false
}

// dateLayouts covers the timestamp formats observed from n8n nodes.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006", // Vietnamese day-first
}

func parseDate(raw string) (time.Time, error) {
	var err error
	for _, layout := range dateLayouts {
		var ts time.Time
		if ts, err = time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, err
}
