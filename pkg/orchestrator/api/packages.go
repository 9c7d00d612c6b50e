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
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/seifane/aurbuild/pkg/orchestrator/store"
	"github.com/seifane/aurbuild/pkg/types"
)

func (s *Server) handlePackages(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listPackages(w, r)
	case http.MethodPost:
		s.createPackage(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) listPackages(w http.ResponseWriter, r *http.Request) {
	search := r.URL.Query().Get("search")
	var (
		pkgs []*types.Package
		err  error
	)
	if search != "" {
		pkgs, err = s.Store.SearchPackagesByName(r.Context(), search)
	} else {
		pkgs, err = s.Store.GetPackages(r.Context())
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, pkgs)
}

func (s *Server) createPackage(w http.ResponseWriter, r *http.Request) {
	var def types.PackageDefinition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	pkg, err := s.Store.CreatePackage(r.Context(), def)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, pkg)
}

type rebuildRequest struct {
	Packages []int64 `json:"packages,omitempty"`
	Force    bool    `json:"force,omitempty"`
}

func (s *Server) handlePackagesRebuild(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req rebuildRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	var ids []int64
	if len(req.Packages) > 0 {
		ids = req.Packages
	}
	if err := s.Store.SetPackagesPending(r.Context(), ids, req.Force); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handlePackageByID dispatches /api/packages/{id}[/logs|/patches[/{pid}]].
func (s *Server) handlePackageByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/packages/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if parts[0] == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid package id")
		return
	}

	switch {
	case len(parts) == 1:
		s.handlePackageRoot(w, r, id)
	case len(parts) == 2 && parts[1] == "logs":
		s.handlePackageLogs(w, r, id)
	case len(parts) == 2 && parts[1] == "patches":
		s.handlePatches(w, r, id)
	case len(parts) == 3 && parts[1] == "patches":
		pid, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid patch id")
			return
		}
		s.handlePatchByID(w, r, id, pid)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handlePackageRoot(w http.ResponseWriter, r *http.Request, id int64) {
	switch r.Method {
	case http.MethodPatch:
		var def types.PackageDefinition
		if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
			writeError(w, http.StatusBadRequest, "invalid body")
			return
		}
		pkg, err := s.Store.UpdatePackage(r.Context(), id, def)
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "package not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, pkg)
	case http.MethodDelete:
		err := s.Store.DeletePackage(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "package not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// rejectParentDir returns true and writes a 400 if any path component is
// the parent-directory marker.
func rejectParentDir(w http.ResponseWriter, name string) bool {
	for _, part := range strings.Split(filepath.ToSlash(name), "/") {
		if part == ".." {
			writeError(w, http.StatusBadRequest, "invalid path")
			return true
		}
	}
	return false
}

func (s *Server) handlePackageLogs(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	pkg, err := s.Store.GetPackage(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "package not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	logName := pkg.Name + ".log"
	if rejectParentDir(w, logName) {
		return
	}
	path := filepath.Join(s.BuildLogsPath, logName)
	data, err := os.ReadFile(path)
	if err != nil {
		writeError(w, http.StatusNotFound, "no logs for package")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write(data)
}

func (s *Server) handlePatches(w http.ResponseWriter, r *http.Request, packageID int64) {
	switch r.Method {
	case http.MethodGet:
		patches, err := s.Store.GetPatchesForPackage(r.Context(), packageID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, patches)
	case http.MethodPost:
		var body struct {
			URL    string  `json:"url"`
			SHA512 *string `json:"sha_512,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid body")
			return
		}
		patch, err := s.Store.CreatePatch(r.Context(), packageID, body.URL, body.SHA512)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, patch)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handlePatchByID(w http.ResponseWriter, r *http.Request, packageID, patchID int64) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	err := s.Store.DeletePatch(r.Context(), patchID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "patch not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
