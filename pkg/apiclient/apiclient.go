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

// Package apiclient is the CLI's HTTP client for the orchestrator's
// operator-facing API: package/patch CRUD, rebuild, logs, workers, and
// webhook triggers.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/seifane/aurbuild/pkg/types"
)

// Client talks to one orchestrator's operator-facing API.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

func New(baseURL, apiKey string) *Client {
	return &Client{BaseURL: baseURL, APIKey: apiKey, HTTP: http.DefaultClient}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

// do sends a request with the configured auth header and decodes a JSON
// response body into out; when out is nil the response body is discarded.
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", c.APIKey)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("calling %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response for %s %s: %w", method, path, err)
	}
	return nil
}

// GetPackages lists every package, or just those matching search when set.
func (c *Client) GetPackages(ctx context.Context, search string) ([]*types.Package, error) {
	path := "/api/packages"
	if search != "" {
		path += "?search=" + url.QueryEscape(search)
	}
	var pkgs []*types.Package
	if err := c.do(ctx, http.MethodGet, path, nil, &pkgs); err != nil {
		return nil, err
	}
	return pkgs, nil
}

// GetPackageByName resolves a single package by exact name, erroring if
// zero or more than one package matches (the CLI's search endpoint can
// return multiple hits for a substring query).
func (c *Client) GetPackageByName(ctx context.Context, name string) (*types.Package, error) {
	pkgs, err := c.GetPackages(ctx, name)
	if err != nil {
		return nil, err
	}
	var exact []*types.Package
	for _, p := range pkgs {
		if p.Name == name {
			exact = append(exact, p)
		}
	}
	switch len(exact) {
	case 0:
		return nil, fmt.Errorf("package %q not found", name)
	case 1:
		return exact[0], nil
	default:
		return nil, fmt.Errorf("package %q is ambiguous", name)
	}
}

type rebuildRequest struct {
	Packages []int64 `json:"packages,omitempty"`
	Force    bool    `json:"force,omitempty"`
}

// RebuildPackages marks packages pending. An empty ids list rebuilds every
// package, matching the orchestrator's own empty-selector semantics.
func (c *Client) RebuildPackages(ctx context.Context, ids []int64, force bool) error {
	return c.do(ctx, http.MethodPost, "/api/packages/rebuild", rebuildRequest{Packages: ids, Force: force}, nil)
}

// GetLogs fetches the raw build log text for a package.
func (c *Client) GetLogs(ctx context.Context, packageID int64) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/api/packages/%d/logs", c.BaseURL, packageID), nil)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", c.APIKey)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching logs: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading logs: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetching logs: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return string(raw), nil
}

// GetWorkers lists every connected worker.
func (c *Client) GetWorkers(ctx context.Context) ([]types.WorkerResponse, error) {
	var workers []types.WorkerResponse
	if err := c.do(ctx, http.MethodGet, "/api/workers", nil, &workers); err != nil {
		return nil, err
	}
	return workers, nil
}

// DeleteWorker evicts a worker from the registry.
func (c *Client) DeleteWorker(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/workers/%d", id), nil, nil)
}

// TriggerPackageUpdatedWebhook manually fires the package_updated webhook
// for one package.
func (c *Client) TriggerPackageUpdatedWebhook(ctx context.Context, packageName string) error {
	return c.do(ctx, http.MethodPost, "/api/webhook/trigger/package_updated/"+url.PathEscape(packageName), nil, nil)
}
