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

package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/seifane/aurbuild/pkg/orchestrator/store"
	"github.com/seifane/aurbuild/pkg/types"
)

func (s *Server) handleWorkers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.Registry.List())
}

func (s *Server) handleWorkerByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	idStr := strings.TrimPrefix(r.URL.Path, "/api/workers/")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid worker id")
		return
	}

	job, ok := s.Registry.Remove(id)
	if !ok {
		writeError(w, http.StatusNotFound, "worker not found")
		return
	}
	if job != nil {
		// Worker disappearance recovery: revert its in-flight job to
		// PENDING so another worker can pick it up.
		if pkg, err := s.Store.GetPackageByName(r.Context(), *job); err == nil && pkg.Status == types.StatusBuilding {
			_ = s.Store.UpdatePackageStatus(r.Context(), pkg.ID, types.StatusPending)
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleWebhookTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/api/webhook/trigger/package_updated/")
	if name == "" {
		writeError(w, http.StatusBadRequest, "package name required")
		return
	}
	pkg, err := s.Store.GetPackageByName(r.Context(), name)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "package not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if s.Webhooks != nil {
		s.Webhooks.NotifyPackageUpdated(r.Context(), *pkg)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
