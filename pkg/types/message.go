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
	"fmt"
)

// Message type discriminators for WebsocketMessage.Type.
const (
	MsgAuthenticate          = "Authenticate"
	MsgWorkerStatusRequest   = "WorkerStatusRequest"
	MsgWorkerStatusUpdate    = "WorkerStatusUpdate"
	MsgJobSubmit             = "JobSubmit"
	MsgUploadArtifactRequest = "UploadArtifactRequest"
	MsgUploadArtifactResp    = "UploadArtifactResponse"
)

// WebsocketMessage is the tagged union exchanged between orchestrator and
// worker. New variants are added by extension only.
type WebsocketMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode wraps a typed payload into a WebsocketMessage.
func Encode(msgType string, payload any) (WebsocketMessage, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return WebsocketMessage{}, fmt.Errorf("encode %s payload: %w", msgType, err)
	}
	return WebsocketMessage{Type: msgType, Payload: raw}, nil
}

// Decode unmarshals the payload of m into v. v must be a pointer.
func (m WebsocketMessage) Decode(v any) error {
	if len(m.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", m.Type, err)
	}
	return nil
}

// AuthenticatePayload is sent worker -> orchestrator as the first message on
// a new session.
type AuthenticatePayload struct {
	APIKey string `json:"api_key"`
}

// WorkerStatusRequestPayload is sent orchestrator -> worker to solicit an
// immediate status push.
type WorkerStatusRequestPayload struct{}

// WorkerStatusUpdatePayload is sent worker -> orchestrator to push current
// state.
type WorkerStatusUpdatePayload struct {
	Status  WorkerStatus `json:"status"`
	Package *string      `json:"package,omitempty"`
}

// JobSubmitPayload is sent orchestrator -> worker to dispatch a build.
type JobSubmitPayload struct {
	Package          PackageDefinition `json:"package"`
	RunBefore        string            `json:"run_before,omitempty"`
	LastBuiltVersion *string           `json:"last_built_version,omitempty"`
	Patches          []PackagePatch    `json:"patches"`
}

// UploadArtifactRequestPayload is reserved for out-of-band transfer
// negotiation.
type UploadArtifactRequestPayload struct{}

// UploadArtifactResponsePayload is reserved for out-of-band transfer
// negotiation.
type UploadArtifactResponsePayload struct {
	Path string `json:"path"`
}
