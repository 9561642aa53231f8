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

// Package blob manages the local upload directory: collision-resistant
// naming, durable writes and streaming downloads of remote files.
//
// Records store bare filenames, never paths. The upload directory is a
// deployment detail; baking it into stored references produced a class
// of duplicated-path bugs in an earlier revision (see cmd/fixpaths).
package blob

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// Writer owns a single upload directory.
type Writer struct {
	dir    string
	client *http.Client
}

// NewWriter creates the upload directory if needed and returns a Writer
// rooted there.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir %s: %w", dir, err)
	}
	return &Writer{
		dir:    dir,
		client: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// UniqueName derives a collision-resistant filename:
// millisecond timestamp, a random large integer, then the display name.
// Concurrent ingestions coordinate through this scheme alone; same
// millisecond plus same random draw is the only collision window.
func (w *Writer) UniqueName(displayName string) string {
	return fmt.Sprintf("%d-%d-%s",
		time.Now().UnixMilli(),
		rand.Intn(1_000_000_000),
		filepath.Base(displayName),
	)
}

// Write stores data under name in the upload directory.
func (w *Writer) Write(name string, data []byte) error {
	if err := os.WriteFile(w.path(name), data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// Fetch streams the response body of a GET on url into name and returns
// the media type the server declared, if any. A non-2xx status or
// transport error removes any partially written file and returns the
// error.
func (w *Writer) Fetch(ctx context.Context, url, name string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build fetch request: %w", err)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch %s: HTTP %d", url, resp.StatusCode)
	}

	contentType := ""
	if mt, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err == nil {
		contentType = mt
	}

	dst := w.path(name)
	f, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", name, err)
	}

	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(dst)
		return "", fmt.Errorf("stream %s: %w", url, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(dst)
		return "", fmt.Errorf("close %s: %w", name, err)
	}
	return contentType, nil
}

// ReadFile reads a previously written file back, e.g. for archival of a
// fetched download.
func (w *Writer) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(w.path(name))
}

func (w *Writer) path(name string) string {
	return filepath.Join(w.dir, filepath.Base(name))
}
