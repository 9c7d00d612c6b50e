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

// Package webhook fans out PackageUpdated notifications to configured
// URLs. Delivery is best-effort: failures are logged, never retried, and
// never block the caller.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/chainguard-dev/clog"

	"github.com/seifane/aurbuild/pkg/types"
)

const deliveryTimeout = 10 * time.Second

// Manager holds the configured webhook URL list.
type Manager struct {
	URLs   []string
	Client *http.Client
}

func New(urls []string) *Manager {
	return &Manager{URLs: urls, Client: &http.Client{Timeout: deliveryTimeout}}
}

type event struct {
	Type    string        `json:"type"`
	Payload types.Package `json:"payload"`
}

// NotifyPackageUpdated spawns its own goroutine per URL so the caller never
// blocks on delivery and never holds a lock across it. Call this only after
// the publisher mutex and package-store mutex have already been released.
func (m *Manager) NotifyPackageUpdated(ctx context.Context, pkg types.Package) {
	body, err := json.Marshal(event{Type: "PackageUpdated", Payload: pkg})
	if err != nil {
		clog.FromContext(ctx).Error("encoding webhook payload", "error", err)
		return
	}

	for _, url := range m.URLs {
		go m.deliver(ctx, url, body)
	}
}

func (m *Manager) deliver(ctx context.Context, url string, body []byte) {
	logger := clog.FromContext(ctx)

	reqCtx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		logger.Warn("building webhook request", "url", url, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.Client.Do(req)
	if err != nil {
		logger.Warn("delivering webhook", "url", url, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		logger.Warn("webhook delivery rejected", "url", url, "status", resp.StatusCode)
	}
}
