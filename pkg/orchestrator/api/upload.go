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
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/chainguard-dev/clog"

	"github.com/seifane/aurbuild/pkg/orchestrator/store"
)

const maxUploadMemory = 32 << 20 // 32MiB held in memory before spilling to temp files

// handleUpload implements step 10 of the worker build pipeline: it accepts
// the multipart body, writes artifacts into the serve directory, writes log
// files into the build logs directory, publishes the repository database,
// records the build result, and fans out a PackageUpdated webhook.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}

	packageName := r.FormValue("package_name")
	if packageName == "" {
		writeError(w, http.StatusBadRequest, "package_name required")
		return
	}
	version := r.FormValue("version")

	var buildErr *string
	if errs := r.MultipartForm.Value["error"]; len(errs) > 0 && errs[0] != "" {
		buildErr = &errs[0]
	}

	pkg, err := s.Store.GetPackageByName(r.Context(), packageName)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "package not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	logger := clog.FromContext(r.Context())

	if err := s.writeUploadedFiles(r, "log_files[]", s.BuildLogsPath); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var files []string
	if buildErr == nil {
		files, err = s.writeArtifacts(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if len(files) == 0 {
			// Version short-circuit: the worker skipped the build (the
			// .SRCINFO version matched last_built_version) and uploaded no
			// artifacts, so keep the previously published file list.
			files = pkg.Files
		} else if err := s.Publisher.Publish(files); err != nil {
			logger.Error("publishing artifacts", "package", packageName, "error", err)
			msg := err.Error()
			buildErr = &msg
		}
	}

	result := store.BuildResult{Error: buildErr}
	if buildErr == nil {
		result.Version = &version
		result.Files = files
	}

	if err := s.Store.RecordBuildResult(r.Context(), pkg.ID, result); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if buildErr == nil && s.Webhooks != nil {
		if updated, err := s.Store.GetPackage(r.Context(), pkg.ID); err == nil {
			s.Webhooks.NotifyPackageUpdated(r.Context(), *updated)
		}
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) writeArtifacts(r *http.Request) ([]string, error) {
	headers := r.MultipartForm.File["files[]"]
	names := make([]string, 0, len(headers))
	for _, fh := range headers {
		if hasParentDirComponent(fh.Filename) {
			return nil, errors.New("invalid artifact filename")
		}
		if err := saveUploadedFile(fh, filepath.Join(s.ServePath, fh.Filename)); err != nil {
			return nil, err
		}
		names = append(names, fh.Filename)
	}
	return names, nil
}

func (s *Server) writeUploadedFiles(r *http.Request, field, destDir string) error {
	headers := r.MultipartForm.File[field]
	if len(headers) == 0 {
		return nil
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return err
	}
	for _, fh := range headers {
		if hasParentDirComponent(fh.Filename) {
			return errors.New("invalid log filename")
		}
		if err := saveUploadedFile(fh, filepath.Join(destDir, fh.Filename)); err != nil {
			return err
		}
	}
	return nil
}

// hasParentDirComponent rejects any path whose components include the
// parent-directory marker, regardless of which slash style it arrived
// with.
func hasParentDirComponent(name string) bool {
	normalized := strings.ReplaceAll(name, "\\", "/")
	for _, part := range strings.Split(normalized, "/") {
		if part == ".." {
			return true
		}
	}
	return false
}

func saveUploadedFile(fh *multipart.FileHeader, dest string) error {
	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, src)
	return err
}
