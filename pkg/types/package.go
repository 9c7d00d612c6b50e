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

// Package types defines the core data model shared by the orchestrator,
// worker, and CLI.
package types

import "time"

// PackageStatus is the tagged state of a configured package.
type PackageStatus string

const (
	StatusPending  PackageStatus = "PENDING"
	StatusBuilding PackageStatus = "BUILDING"
	StatusBuilt    PackageStatus = "BUILT"
	StatusFailed   PackageStatus = "FAILED"
)

// Package is the configured buildable unit owned exclusively by the
// orchestrator's store.
type Package struct {
	ID                int64         `json:"id"`
	Name              string        `json:"name"`
	RunBefore         string        `json:"run_before,omitempty"`
	Status            PackageStatus `json:"status"`
	LastBuilt         *time.Time    `json:"last_built,omitempty"`
	LastBuiltVersion  *string       `json:"last_built_version,omitempty"`
	Files             []string      `json:"files"`
	LastError         *string       `json:"last_error,omitempty"`
}

// PackagePatch is strictly owned by its Package; deleting the Package
// cascades to its patches.
type PackagePatch struct {
	ID        int64   `json:"id"`
	PackageID int64   `json:"package_id"`
	URL       string  `json:"url"`
	SHA512    *string `json:"sha_512,omitempty"`
}

// PackageDefinition is the subset of Package fields an operator may supply
// when creating or patching one.
type PackageDefinition struct {
	Name      string `json:"name"`
	RunBefore string `json:"run_before,omitempty"`
}

// Job is the ephemeral envelope sent to a worker on dispatch.
type Job struct {
	Package          PackageDefinition `json:"package"`
	LastBuiltVersion *string           `json:"last_built_version,omitempty"`
	Patches          []PackagePatch    `json:"patches"`
}
