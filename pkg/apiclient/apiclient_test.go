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

package apiclient

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/seifane/aurbuild/pkg/orchestrator/api"
	"github.com/seifane/aurbuild/pkg/orchestrator/publish"
	"github.com/seifane/aurbuild/pkg/orchestrator/registry"
	"github.com/seifane/aurbuild/pkg/orchestrator/store"
	"github.com/seifane/aurbuild/pkg/types"
)

func newTestServer(t *testing.T) (*httptest.Server, store.PackageStore) {
	t.Helper()
	s := store.NewMemoryStore()
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
	t.Cleanup(srv.Close)
	return srv, s
}

func TestGetPackagesAndGetByName(t *testing.T) {
	srv, s := newTestServer(t)
	_, err := s.CreatePackage(context.Background(), types.PackageDefinition{Name: "hello"})
	require.NoError(t, err)
	_, err = s.CreatePackage(context.Background(), types.PackageDefinition{Name: "hello-bin"})
	require.NoError(t, err)

	c := New(srv.URL, "secret")

	all, err := c.GetPackages(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, all, 2)

	pkg, err := c.GetPackageByName(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, "hello", pkg.Name)

	_, err = c.GetPackageByName(context.Background(), "missing")
	require.Error(t, err)
}

func TestRebuildPackages(t *testing.T) {
	srv, s := newTestServer(t)
	pkg, err := s.CreatePackage(context.Background(), types.PackageDefinition{Name: "hello"})
	require.NoError(t, err)
	require.NoError(t, s.UpdatePackageStatus(context.Background(), pkg.ID, types.StatusBuilt))

	c := New(srv.URL, "secret")
	require.NoError(t, c.RebuildPackages(context.Background(), nil, false))

	updated, err := s.GetPackage(context.Background(), pkg.ID)
	require.NoError(t, err)
	require.Equal(t, types.StatusPending, updated.Status)
}

func TestGetWorkersEmpty(t *testing.T) {
	srv, _ := newTestServer(t)
	c := New(srv.URL, "secret")

	workers, err := c.GetWorkers(context.Background())
	require.NoError(t, err)
	require.Empty(t, workers)
}

func TestTriggerWebhookUnknownPackage(t *testing.T) {
	srv, _ := newTestServer(t)
	c := New(srv.URL, "secret")

	err := c.TriggerPackageUpdatedWebhook(context.Background(), "missing")
	require.Error(t, err)
}

func TestWrongAPIKeyIsUnauthorized(t *testing.T) {
	srv, _ := newTestServer(t)
	c := New(srv.URL, "wrong")

	_, err := c.GetPackages(context.Background(), "")
	require.Error(t, err)
}
