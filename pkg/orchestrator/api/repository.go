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
	"net/http"
	"strings"
)

// repositoryFileServer serves the published repository (packages,
// signatures, database files) to anonymous Pacman clients, rejecting any
// request path with a parent-directory component before delegating to
// http.FileServer.
func (s *Server) repositoryFileServer() http.Handler {
	fs := http.FileServer(http.Dir(s.ServePath))
	strip := http.StripPrefix("/repository/", fs)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hasParentDirComponent(strings.TrimPrefix(r.URL.Path, "/repository/")) {
			writeError(w, http.StatusBadRequest, "invalid path")
			return
		}
		strip.ServeHTTP(w, r)
	})
}
