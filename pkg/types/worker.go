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

// WorkerStatus is the worker-side status chain:
// STANDBY -> DISPATCHED -> UPDATING -> WORKING -> UPLOADING -> CLEANING -> STANDBY.
type WorkerStatus string

const (
	WorkerUnknown    WorkerStatus = "UNKNOWN"
	WorkerInit       WorkerStatus = "INIT"
	WorkerStandby    WorkerStatus = "STANDBY"
	WorkerDispatched WorkerStatus = "DISPATCHED"
	WorkerUpdating   WorkerStatus = "UPDATING"
	WorkerWorking    WorkerStatus = "WORKING"
	WorkerUploading  WorkerStatus = "UPLOADING"
	WorkerCleaning   WorkerStatus = "CLEANING"
)

// WorkerResponse is the HTTP-visible view of a worker session.
type WorkerResponse struct {
	ID          int64        `json:"id"`
	Status      WorkerStatus `json:"status"`
	CurrentJob  *string      `json:"current_job,omitempty"`
	IsAuthenticated bool     `json:"is_authenticated"`
}

// PackageResponse is the HTTP-visible view of a Package.
type PackageResponse = Package

// PackagePatchResponse is the HTTP-visible view of a PackagePatch.
type PackagePatchResponse = PackagePatch
