// Copyright 2024 Chainguard, Inc.
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

// Package uploadclient posts build results to the orchestrator's upload
// endpoint as a multipart form, matching the field names the server side
// expects: package_name, version, error, files[], log_files[].
package uploadclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
)

// Client posts upload requests to one orchestrator.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

func New(baseURL, apiKey string) *Client {
	return &Client{BaseURL: baseURL, APIKey: apiKey, HTTP: http.DefaultClient}
}

// Result is the outcome the worker reports for one build.
type Result struct {
	PackageName string
	// Version is also set when the build was skipped because the version
	// was unchanged (version short-circuit); Files is then empty.
	Version string
	// Error is set when the build failed; mutually exclusive with a
	// nonempty Version/Files.
	Error string
	Files []string // absolute paths to produced .pkg.tar.zst artifacts
	Logs  []string // absolute paths to log files in the per-build log directory
}

// Upload POSTs the multipart body described by spec.md §4.4 step 10.
func (c *Client) Upload(ctx context.Context, result Result) error {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if err := writer.WriteField("package_name", result.PackageName); err != nil {
		return fmt.Errorf("writing package_name field: %w", err)
	}
	if err := writer.WriteField("version", result.Version); err != nil {
		return fmt.Errorf("writing version field: %w", err)
	}
	if result.Error != "" {
		if err := writer.WriteField("error", result.Error); err != nil {
			return fmt.Errorf("writing error field: %w", err)
		}
	}
	if err := attachFiles(writer, "files[]", result.Files); err != nil {
		return err
	}
	if err := attachFiles(writer, "log_files[]", result.Logs); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("closing multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/worker/upload", body)
	if err != nil {
		return fmt.Errorf("building upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", c.APIKey)

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("uploading build result for %s: %w", result.PackageName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upload for %s rejected with status %d", result.PackageName, resp.StatusCode)
	}
	return nil
}

func attachFiles(writer *multipart.Writer, field string, paths []string) error {
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("opening %s: %w", path, err)
		}
		part, err := writer.CreateFormFile(field, filepath.Base(path))
		if err != nil {
			f.Close()
			return fmt.Errorf("creating form file for %s: %w", path, err)
		}
		if _, err := io.Copy(part, f); err != nil {
			f.Close()
			return fmt.Errorf("copying %s into form: %w", path, err)
		}
		f.Close()
	}
	return nil
}
