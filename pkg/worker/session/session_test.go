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

package session

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/seifane/aurbuild/pkg/orchestrator/registry"
	"github.com/seifane/aurbuild/pkg/orchestrator/store"
	"github.com/seifane/aurbuild/pkg/orchestrator/wsconn"
	"github.com/seifane/aurbuild/pkg/types"
)

func newOrchestratorServer(t *testing.T, apiKey string) (*httptest.Server, *registry.Registry) {
	t.Helper()
	reg := registry.New()
	h := &wsconn.Handler{Registry: reg, Store: store.NewMemoryStore(), APIKey: apiKey}
	s := httptest.NewServer(h)
	t.Cleanup(s.Close)
	return s, reg
}

func TestDialAuthenticatesAndBecomesIdle(t *testing.T) {
	server, reg := newOrchestratorServer(t, "secret")
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	s, err := Dial(context.Background(), wsURL, "secret")
	require.NoError(t, err)
	defer s.Close()

	go func() { _ = s.Run(context.Background()) }()

	require.Eventually(t, func() bool {
		return reg.FindIdleAuthenticated() != nil
	}, time.Second, 10*time.Millisecond)
}

func TestPushStatusReflectsInRegistry(t *testing.T) {
	server, reg := newOrchestratorServer(t, "secret")
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	s, err := Dial(context.Background(), wsURL, "secret")
	require.NoError(t, err)
	defer s.Close()

	go func() { _ = s.Run(context.Background()) }()
	require.Eventually(t, func() bool {
		return reg.FindIdleAuthenticated() != nil
	}, time.Second, 10*time.Millisecond)

	pkgName := "hello"
	require.NoError(t, s.PushStatus(types.WorkerWorking, &pkgName))

	require.Eventually(t, func() bool {
		return reg.FindIdleAuthenticated() == nil
	}, time.Second, 10*time.Millisecond)
}

func TestOnJobInvokedForDispatchedJob(t *testing.T) {
	server, reg := newOrchestratorServer(t, "secret")
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	s, err := Dial(context.Background(), wsURL, "secret")
	require.NoError(t, err)
	defer s.Close()

	var mu sync.Mutex
	var received *types.JobSubmitPayload
	s.OnJob = func(_ context.Context, payload types.JobSubmitPayload) {
		mu.Lock()
		received = &payload
		mu.Unlock()
	}

	go func() { _ = s.Run(context.Background()) }()
	require.Eventually(t, func() bool {
		return reg.FindIdleAuthenticated() != nil
	}, time.Second, 10*time.Millisecond)

	worker := reg.FindIdleAuthenticated()
	require.NotNil(t, worker)
	require.NoError(t, reg.Dispatch(worker, "hello", types.JobSubmitPayload{
		Package: types.PackageDefinition{Name: "hello"},
	}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return received != nil && received.Package.Name == "hello"
	}, time.Second, 10*time.Millisecond)
}
