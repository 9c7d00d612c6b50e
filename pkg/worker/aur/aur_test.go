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

package aur

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &Client{BaseURL: srv.URL + "/rpc/", HTTP: srv.Client()}
}

func TestResolveBaseExactNameMatch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "provides", r.URL.Query().Get("by"))
		w.Write([]byte(`{"resultcount":2,"type":"search","version":5,"results":[
			{"Name":"yay-bin","PackageBase":"yay-bin"},
			{"Name":"yay","PackageBase":"yay"}
		]}`))
	})

	base := c.ResolveBase(context.Background(), "yay")
	require.Equal(t, "yay", base)
}

func TestResolveBaseFallsBackToFirstResult(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"resultcount":1,"type":"search","version":5,"results":[
			{"Name":"python-foo","PackageBase":"python-foo-base"}
		]}`))
	})

	base := c.ResolveBase(context.Background(), "foo")
	require.Equal(t, "python-foo-base", base)
}

func TestResolveBaseFallsBackToNameOnQueryFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	base := c.ResolveBase(context.Background(), "broken-pkg")
	require.Equal(t, "broken-pkg", base)
}

func TestResolveBaseFallsBackToNameOnEmptyResults(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"resultcount":0,"type":"search","version":5,"results":[]}`))
	})

	base := c.ResolveBase(context.Background(), "unknown-pkg")
	require.Equal(t, "unknown-pkg", base)
}
