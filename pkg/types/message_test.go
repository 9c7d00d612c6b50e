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

package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWebsocketMessageRoundTrip(t *testing.T) {
	pkgName := "hello"
	msg, err := Encode(MsgWorkerStatusUpdate, WorkerStatusUpdatePayload{
		Status:  WorkerWorking,
		Package: &pkgName,
	})
	require.NoError(t, err)

	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded WebsocketMessage
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, msg, decoded)

	var payload WorkerStatusUpdatePayload
	require.NoError(t, decoded.Decode(&payload))
	require.Equal(t, WorkerWorking, payload.Status)
	require.Equal(t, pkgName, *payload.Package)
}

func TestEncodeEmptyPayload(t *testing.T) {
	msg, err := Encode(MsgWorkerStatusRequest, WorkerStatusRequestPayload{})
	require.NoError(t, err)
	require.Equal(t, MsgWorkerStatusRequest, msg.Type)

	var payload WorkerStatusRequestPayload
	require.NoError(t, msg.Decode(&payload))
}

func TestPackageResponseRoundTrip(t *testing.T) {
	version := "1.0.0-1"
	pkg := Package{
		ID:               1,
		Name:             "hello",
		Status:           StatusBuilt,
		LastBuiltVersion: &version,
		Files:            []string{"hello-1.0.0-1-any.pkg.tar.zst"},
	}
	raw, err := json.Marshal(pkg)
	require.NoError(t, err)

	var decoded Package
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, pkg, decoded)
}
