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

// Package api provides the orchestrator's operator-facing HTTP surface:
// package/patch CRUD, worker management, webhook triggers, the worker
// upload endpoint, the WS upgrade, and the static repository file server.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/seifane/aurbuild/pkg/orchestrator/publish"
	"github.com/seifane/aurbuild/pkg/orchestrator/registry"
	"github.com/seifane/aurbuild/pkg/orchestrator/store"
	"github.com/seifane/aurbuild/pkg/orchestrator/webhook"
	"github.com/seifane/aurbuild/pkg/orchestrator/wsconn"
)

// Server is the HTTP API server.
type Server struct {
	Store         store.PackageStore
	Registry      *registry.Registry
	Publisher     *publish.Publisher
	Webhooks      *webhook.Manager
	BuildLogsPath string
	ServePath     string
	APIKey        string

	mux *http.ServeMux
}

// New wires the routes described by the HTTP API surface and wraps them
// with bearer-style auth, except the WS upgrade (which authenticates
// in-band via the first Authenticate frame) and the static repository
// file server (served to anonymous Pacman clients).
func New(s *Server) *Server {
	s.mux = http.NewServeMux()

	s.mux.HandleFunc("/api/packages", s.withAuth(s.handlePackages))
	s.mux.HandleFunc("/api/packages/rebuild", s.withAuth(s.handlePackagesRebuild))
	s.mux.HandleFunc("/api/packages/", s.withAuth(s.handlePackageByID))
	s.mux.HandleFunc("/api/workers", s.withAuth(s.handleWorkers))
	s.mux.HandleFunc("/api/workers/", s.withAuth(s.handleWorkerByID))
	s.mux.HandleFunc("/api/webhook/trigger/package_updated/", s.withAuth(s.handleWebhookTrigger))
	s.mux.HandleFunc("/api/worker/upload", s.withAuth(s.handleUpload))

	s.mux.Handle("/ws", &wsconn.Handler{Registry: s.Registry, Store: s.Store, APIKey: s.APIKey})

	s.mux.Handle("/repository/", s.repositoryFileServer())

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// withAuth enforces the literal (non-prefixed) bearer-style contract:
// Authorization must equal the configured api_key exactly.
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != s.APIKey {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
