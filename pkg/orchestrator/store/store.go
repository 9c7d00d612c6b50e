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

// Package store provides the package/patch persistence implementations.
package store

import (
	"context"
	"errors"

	"github.com/seifane/aurbuild/pkg/types"
)

// ErrNotFound is returned when a package or patch id/name does not exist.
var ErrNotFound = errors.New("not found")

// PackageStore defines the persistence contract required by the
// orchestrator core. All writes are serialized by the implementation.
type PackageStore interface {
	CreatePackage(ctx context.Context, def types.PackageDefinition) (*types.Package, error)
	UpdatePackage(ctx context.Context, id int64, def types.PackageDefinition) (*types.Package, error)
	UpdatePackageStatus(ctx context.Context, id int64, status types.PackageStatus) error
	DeletePackage(ctx context.Context, id int64) error

	GetPackage(ctx context.Context, id int64) (*types.Package, error)
	GetPackageByName(ctx context.Context, name string) (*types.Package, error)
	SearchPackagesByName(ctx context.Context, search string) ([]*types.Package, error)
	GetPackages(ctx context.Context) ([]*types.Package, error)
	GetNextPendingPackage(ctx context.Context) (*types.Package, error)

	// SetPackagesPending transitions packages to PENDING. When ids is nil,
	// every package is considered. When force is true, last_built_version
	// is cleared and BUILDING rows are overridden too; otherwise BUILDING
	// rows are left untouched.
	SetPackagesPending(ctx context.Context, ids []int64, force bool) error

	// SetPackagesRebuild transitions BUILT/FAILED packages older than
	// interval to PENDING, returning the number of rows affected.
	SetPackagesRebuild(ctx context.Context, interval int64) (int, error)

	// RecordBuildResult applies the outcome of a worker upload: on success
	// status becomes BUILT with last_built/last_built_version/files set and
	// last_error cleared; on failure status becomes FAILED with last_error
	// set.
	RecordBuildResult(ctx context.Context, id int64, result BuildResult) error

	CreatePatch(ctx context.Context, packageID int64, url string, sha512 *string) (*types.PackagePatch, error)
	GetPatchesForPackage(ctx context.Context, packageID int64) ([]*types.PackagePatch, error)
	UpdatePatch(ctx context.Context, id int64, url string, sha512 *string) (*types.PackagePatch, error)
	DeletePatch(ctx context.Context, id int64) error

	Close() error
}

// BuildResult carries the outcome of a worker's upload for a single
// package.
type BuildResult struct {
	Version *string
	Files   []string
	Error   *string
}
