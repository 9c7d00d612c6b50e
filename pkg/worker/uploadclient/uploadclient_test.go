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

package uploadclient

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/seifane/aurbuild/pkg/orchestrator/api"
	"github.com/seifane/aurbuild/pkg/orchestrator/publish"
	"github.com/seifane/aurbuild/pkg/orchestrator/registry"
	"github.com/seifane/aurbuild/pkg/orchestrator/store"
	"github.com/seifane/aurbuild/pkg/types"
)

func TestUploadSuccessPublishesAndRecordsResult(t *testing.T) {
	s := store.NewMemoryStore()
	pkg, err := s.CreatePackage(context.Background(), types.PackageDefinition{Name: "hello"})
	require.NoError(t, err)

	dir := t.TempDir()
	pub, err := publish.New("aurbuild", filepath.Join(dir, "repo"), "")
	require.NoError(t, err)

	srv := httptest.NewServer(api.New(&api.Server{
		Store:         s,
		Registry:      registry.New(),
		Publisher:     pub,
		BuildLogsPath: filepath.Join(dir, "logs"),
		ServePath:     pub.Path,
		APIKey:        "secret",
	}))
	defer srv.Close()

	artifact := filepath.Join(dir, "hello-1.0-1.pkg.tar.zst")
	require.NoError(t, os.WriteFile(artifact, []byte("pkg"), 0o644))
	logFile := filepath.Join(dir, "hello.log")
	require.NoError(t, os.WriteFile(logFile, []byte("build log"), 0o644))

	stubRepoAdd(t)

	c := New(srv.URL, "secret")
	err = c.Upload(context.Background(), Result{
		PackageName: "hello",
		Version:     "1.0-1",
		Files:       []string{artifact},
		Logs:        []string{logFile},
	})
	require.NoError(t, err)

	updated, err := s.GetPackage(context.Background(), pkg.ID)
	require.NoError(t, err)
	require.Equal(t, types.StatusBuilt, updated.Status)
	require.Equal(t, "1.0-1", *updated.LastBuiltVersion)
}

func TestUploadFailureRecordsError(t *testing.T) {
	s := store.NewMemoryStore()
	_, err := s.CreatePackage(context.Background(), types.PackageDefinition{Name: "broken"})
	require.NoError(t, err)

	dir := t.TempDir()
	pub, err := publish.New("aurbuild", filepath.Join(dir, "repo"), "")
	require.NoError(t, err)

	srv := httptest.NewServer(api.New(&api.Server{
		Store:         s,
		Registry:      registry.New(),
		Publisher:     pub,
		BuildLogsPath: filepath.Join(dir, "logs"),
		ServePath:     pub.Path,
		APIKey:        "secret",
	}))
	defer srv.Close()

	c := New(srv.URL, "secret")
	err = c.Upload(context.Background(), Result{
		PackageName: "broken",
		Error:       "build failed: nonzero exit",
	})
	require.NoError(t, err)

	updated, err := s.GetPackageByName(context.Background(), "broken")
	require.NoError(t, err)
	require.Equal(t, types.StatusFailed, updated.Status)
	require.Equal(t, "build failed: nonzero exit", *updated.LastError)
}

func stubRepoAdd(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "repo-add")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755))
	oldPath := os.Getenv("PATH")
	require.NoError(t, os.Setenv("PATH", dir+string(os.PathListSeparator)+oldPath))
	t.Cleanup(func() { _ = os.Setenv("PATH", oldPath) })
}
