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

// Package aur is a minimal client for the AUR RPC used to resolve a
// "provides" name to the base package that owns it.
package aur

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const defaultBaseURL = "https://aur.archlinux.org/rpc/"

// Package is one result entry from the AUR RPC.
type Package struct {
	Name         string   `json:"Name"`
	PackageBase  string   `json:"PackageBase"`
	Depends      []string `json:"Depends"`
	MakeDepends  []string `json:"MakeDepends"`
	CheckDepends []string `json:"CheckDepends"`
}

type searchResponse struct {
	ResultCount int       `json:"resultcount"`
	Results     []Package `json:"results"`
	Type        string    `json:"type"`
	Version     int       `json:"version"`
}

// Client queries the AUR RPC.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func New() *Client {
	return &Client{BaseURL: defaultBaseURL, HTTP: &http.Client{Timeout: 15 * time.Second}}
}

// SearchByProvides queries `search/<name>?by=provides`, returning every
// package that declares it provides name, in the RPC's natural order.
func (c *Client) SearchByProvides(ctx context.Context, name string) ([]Package, error) {
	base := c.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parsing AUR RPC base URL: %w", err)
	}
	q := u.Query()
	q.Set("v", "5")
	q.Set("type", "search")
	q.Set("by", "provides")
	q.Set("arg", name)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("building AUR RPC request: %w", err)
	}

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying AUR RPC for %q: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("AUR RPC returned status %d for %q", resp.StatusCode, name)
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding AUR RPC response for %q: %w", name, err)
	}
	return out.Results, nil
}

// ResolveBase resolves a provides-name to a package base, per spec.md §4.5:
// accept the exact-name match; otherwise fall back to the first result;
// if the query itself fails, fall back to treating the name as its own
// base.
func (c *Client) ResolveBase(ctx context.Context, name string) string {
	results, err := c.SearchByProvides(ctx, name)
	if err != nil || len(results) == 0 {
		return name
	}
	for _, r := range results {
		if r.Name == name {
			return r.PackageBase
		}
	}
	return results[0].PackageBase
}
