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

// Package archive uploads redundant copies of ingested files to Google
// Drive using a service account. Archival is best-effort throughout the
// service: the local copy is the source of truth and callers discard
// failures after logging them.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"golang.org/x/oauth2/jwt"
)

const (
	uploadURL = "https://www.googleapis.com/upload/drive/v3/files?uploadType=multipart&fields=id,name,webViewLink"
	tokenURL  = "https://oauth2.googleapis.com/token"
	scope     = "https://www.googleapis.com/auth/drive"
)

// DriveClient archives files to a Google Drive folder.
type DriveClient struct {
	httpClient *http.Client
	folderID   string
	uploadURL  string
}

// Config holds the service-account credentials for Drive archival.
type Config struct {
	ClientEmail string
	// PrivateKey is the PEM key from the service-account JSON; literal
	// \n sequences (as they arrive via env vars) are unescaped here.
	PrivateKey string
	FolderID   string
}

// NewDriveClient builds an authenticated Drive client from
// service-account credentials.
func NewDriveClient(ctx context.Context, cfg Config) *DriveClient {
	creds := &jwt.Config{
		Email:      cfg.ClientEmail,
		PrivateKey: []byte(strings.ReplaceAll(cfg.PrivateKey, `\n`, "\n")),
		Scopes:     []string{scope},
		TokenURL:   tokenURL,
	}
	return &DriveClient{
		httpClient: creds.Client(ctx),
		folderID:   cfg.FolderID,
		uploadURL:  uploadURL,
	}
}

// Upload sends the bytes to Drive as a multipart upload and returns the
// created file's ID.
func (c *DriveClient) Upload(ctx context.Context, data []byte, name, mimeType string) (string, error) {
	meta := map[string]any{"name": name}
	if c.folderID != "" {
		meta["parents"] = []string{c.folderID}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("marshal file metadata: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"application/json; charset=UTF-8"},
	})
	if err != nil {
		return "", err
	}
	if _, err := part.Write(metaJSON); err != nil {
		return "", fmt.Errorf("write metadata part: %w", err)
	}

	part, err = mw.CreatePart(textproto.MIMEHeader{
		"Content-Type": {mimeType},
	})
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("write media part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL, &body)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	// Drive's multipart upload wants multipart/related, not form-data.
	req.Header.Set("Content-Type", "multipart/related; boundary="+mw.Boundary())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("drive upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("drive upload: HTTP %d: %s", resp.StatusCode, detail)
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("decode drive response: %w", err)
	}
	return created.ID, nil
}
