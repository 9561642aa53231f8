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
	"encoding/base64"
	"sort"
	"strings"
)

// AttachmentShape identifies which of the supported payload shapes an
// attachment arrived in.
type AttachmentShape int

const (
	// ShapeNone means no attachment field was present at all.
	ShapeNone AttachmentShape = iota
	// ShapeBinaryMap is n8n's native binary object: a map from
	// attachment key ("attachment_0") to a descriptor with base64 data.
	ShapeBinaryMap
	// ShapeBinaryString is the binary field collapsed to a bare string.
	ShapeBinaryString
	// ShapeInlineBase64 is a standalone fileData field.
	ShapeInlineBase64
	// ShapeRemoteURL is a fileUrl field; the bytes must be fetched.
	ShapeRemoteURL
)

func (s AttachmentShape) String() string {
	switch s {
	case ShapeBinaryMap:
		return "binary-map"
	case ShapeBinaryString:
		return "binary-string"
	case ShapeInlineBase64:
		return "inline-base64"
	case ShapeRemoteURL:
		return "remote-url"
	}
	return "none"
}

// Attachment is the resolved binary payload. Exactly one of Data and
// URL is set, except for ShapeNone where neither is.
type Attachment struct {
	Shape    AttachmentShape
	Data     []byte
	MimeType string
	URL      string
	// FileName is the display name carried inside an n8n binary
	// descriptor, used as a fallback when the payload has no
	// tenFile/fileName field of its own.
	FileName string
}

const defaultMimeType = "application/octet-stream"

// ResolveAttachment probes the payload for an attachment in precedence
// order: binary map, binary string, inline base64, remote URL. A payload
// with none of the shapes resolves to ShapeNone; that is not an error,
// some workflows defer the file transfer to a later call.
//
// n8n serialises its binary object as JSON, which does not preserve key
// order, so "first attachment" is made deterministic by taking the
// lowest key in sort order (attachment_0 before attachment_1).
func ResolveAttachment(payload map[string]any) (Attachment, error) {
	switch binary := payload["binary"].(type) {
	case map[string]any:
		if len(binary) == 0 {
			break
		}
		keys := make([]string, 0, len(binary))
		for k := range binary {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		desc, ok := binary[keys[0]].(map[string]any)
		if !ok {
			break
		}
		att := Attachment{Shape: ShapeBinaryMap, MimeType: defaultMimeType}
		if name, ok := desc["fileName"].(string); ok {
			att.FileName = name
		}
		if mime, ok := desc["mimeType"].(string); ok && mime != "" {
			att.MimeType = mime
		} else if mime, ok := desc["mime"].(string); ok && mime != "" {
			att.MimeType = mime
		}

		switch data := desc["data"].(type) {
		case []byte:
			att.Data = data
		case string:
			raw, mime, err := decodeBase64(data)
			if err != nil {
				return Attachment{}, &DecodeError{Shape: att.Shape.String(), Err: err}
			}
			att.Data = raw
			if att.MimeType == defaultMimeType && mime != "" {
				att.MimeType = mime
			}
		}
		if att.Data != nil {
			return att, nil
		}

	case string:
		raw, mime, err := decodeBase64(binary)
		if err != nil {
			return Attachment{}, &DecodeError{Shape: ShapeBinaryString.String(), Err: err}
		}
		return Attachment{Shape: ShapeBinaryString, Data: raw, MimeType: orDefault(mime)}, nil
	}

	if fileData, ok := payload["fileData"].(string); ok && fileData != "" {
		raw, mime, err := decodeBase64(fileData)
		if err != nil {
			return Attachment{}, &DecodeError{Shape: ShapeInlineBase64.String(), Err: err}
		}
		return Attachment{Shape: ShapeInlineBase64, Data: raw, MimeType: orDefault(mime)}, nil
	}

	if fileURL, ok := payload["fileUrl"].(string); ok && fileURL != "" {
		return Attachment{Shape: ShapeRemoteURL, URL: fileURL, MimeType: defaultMimeType}, nil
	}

	return Attachment{Shape: ShapeNone}, nil
}

// decodeBase64 decodes a MIME-prefixed or bare base64 string. A prefix
// of the form "data:<type>[;base64],<payload>" is stripped and the
// embedded media type, if any, returned alongside the bytes.
func decodeBase64(s string) ([]byte, string, error) {
	mime := ""
	if strings.HasPrefix(s, "data:") {
		comma := strings.Index(s, ",")
		if comma >= 0 {
			mime = strings.TrimSuffix(s[len("data:"):comma], ";base64")
			s = s[comma+1:]
		}
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, "", err
	}
	return raw, mime, nil
}

func orDefault(mime string) string {
	if mime == "" {
		return defaultMimeType
	}
	return mime
}
