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

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/seifane/aurbuild/pkg/types"
)

func TestCreatePackage(t *testing.T) {
	s := NewMemoryStore()
	p, err := s.CreatePackage(context.Background(), types.PackageDefinition{Name: "hello"})
	require.NoError(t, err)
	require.Equal(t, int64(1), p.ID)
	require.Equal(t, types.StatusPending, p.Status)
}

func TestUpdatePackageStatus(t *testing.T) {
	s := NewMemoryStore()
	p, err := s.CreatePackage(context.Background(), types.PackageDefinition{Name: "hello"})
	require.NoError(t, err)

	require.NoError(t, s.UpdatePackageStatus(context.Background(), p.ID, types.StatusBuilding))
	got, err := s.GetPackage(context.Background(), p.ID)
	require.NoError(t, err)
	require.Equal(t, types.StatusBuilding, got.Status)
}

func TestSetPackagesPendingForceOverridesBuilding(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	p, err := s.CreatePackage(ctx, types.PackageDefinition{Name: "hello"})
	require.NoError(t, err)
	require.NoError(t, s.UpdatePackageStatus(ctx, p.ID, types.StatusBuilding))
	version := "1.0.0-1"
	require.NoError(t, s.RecordBuildResult(ctx, p.ID, BuildResult{Version: &version, Files: []string{"a"}}))
	require.NoError(t, s.UpdatePackageStatus(ctx, p.ID, types.StatusBuilding))

	require.NoError(t, s.SetPackagesPending(ctx, []int64{p.ID}, true))

	got, err := s.GetPackage(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, types.StatusPending, got.Status)
	require.Nil(t, got.LastBuiltVersion)
}

func TestSetPackagesPendingNonForcePreservesBuilding(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	p, err := s.CreatePackage(ctx, types.PackageDefinition{Name: "hello"})
	require.NoError(t, err)
	require.NoError(t, s.UpdatePackageStatus(ctx, p.ID, types.StatusBuilding))

	require.NoError(t, s.SetPackagesPending(ctx, []int64{p.ID}, false))

	got, err := s.GetPackage(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, types.StatusBuilding, got.Status)
}

func TestSetPackagesPendingIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	p, err := s.CreatePackage(ctx, types.PackageDefinition{Name: "hello"})
	require.NoError(t, err)

	require.NoError(t, s.SetPackagesPending(ctx, []int64{p.ID}, false))
	first, err := s.GetPackage(ctx, p.ID)
	require.NoError(t, err)

	require.NoError(t, s.SetPackagesPending(ctx, []int64{p.ID}, false))
	second, err := s.GetPackage(ctx, p.ID)
	require.NoError(t, err)

	require.Equal(t, first, second)
}

func TestSetPackagesRebuildOnlyAffectsOldTerminalRows(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	old, err := s.CreatePackage(ctx, types.PackageDefinition{Name: "old"})
	require.NoError(t, err)
	fresh, err := s.CreatePackage(ctx, types.PackageDefinition{Name: "fresh"})
	require.NoError(t, err)
	building, err := s.CreatePackage(ctx, types.PackageDefinition{Name: "building"})
	require.NoError(t, err)

	version := "1.0-1"
	require.NoError(t, s.RecordBuildResult(ctx, old.ID, BuildResult{Version: &version, Files: []string{"a"}}))
	require.NoError(t, s.RecordBuildResult(ctx, fresh.ID, BuildResult{Version: &version, Files: []string{"a"}}))
	require.NoError(t, s.UpdatePackageStatus(ctx, building.ID, types.StatusBuilding))

	// Backdate "old" beyond the rebuild interval.
	s.mu.Lock()
	past := time.Now().Add(-200 * time.Second)
	s.packages[old.ID].LastBuilt = &past
	s.mu.Unlock()

	n, err := s.SetPackagesRebuild(ctx, 100)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	gotOld, err := s.GetPackage(ctx, old.ID)
	require.NoError(t, err)
	require.Equal(t, types.StatusPending, gotOld.Status)

	gotFresh, err := s.GetPackage(ctx, fresh.ID)
	require.NoError(t, err)
	require.Equal(t, types.StatusBuilt, gotFresh.Status)

	gotBuilding, err := s.GetPackage(ctx, building.ID)
	require.NoError(t, err)
	require.Equal(t, types.StatusBuilding, gotBuilding.Status)
}

func TestDeletePackageCascadesPatches(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	p, err := s.CreatePackage(ctx, types.PackageDefinition{Name: "hello"})
	require.NoError(t, err)
	_, err = s.CreatePatch(ctx, p.ID, "https://example.com/patch.diff", nil)
	require.NoError(t, err)

	require.NoError(t, s.DeletePackage(ctx, p.ID))

	patches, err := s.GetPatchesForPackage(ctx, p.ID)
	require.NoError(t, err)
	require.Empty(t, patches)
}

func TestSearchPackagesByNameOrderedByID(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, err := s.CreatePackage(ctx, types.PackageDefinition{Name: "zzz-tool"})
	require.NoError(t, err)
	_, err = s.CreatePackage(ctx, types.PackageDefinition{Name: "aaa-tool"})
	require.NoError(t, err)

	results, err := s.SearchPackagesByName(ctx, "tool")
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "zzz-tool", results[0].Name)
	require.Equal(t, "aaa-tool", results[1].Name)
}

func TestCreateListDeletePatch(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	p, err := s.CreatePackage(ctx, types.PackageDefinition{Name: "hello"})
	require.NoError(t, err)

	patch, err := s.CreatePatch(ctx, p.ID, "https://example.com/a.diff", nil)
	require.NoError(t, err)

	patches, err := s.GetPatchesForPackage(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, patches, 1)

	require.NoError(t, s.DeletePatch(ctx, patch.ID))
	patches, err = s.GetPatchesForPackage(ctx, p.ID)
	require.NoError(t, err)
	require.Empty(t, patches)
}

func TestUpdatePatch(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	p, err := s.CreatePackage(ctx, types.PackageDefinition{Name: "hello"})
	require.NoError(t, err)

	patch, err := s.CreatePatch(ctx, p.ID, "https://example.com/a.diff", nil)
	require.NoError(t, err)

	sum := "deadbeef"
	updated, err := s.UpdatePatch(ctx, patch.ID, "https://example.com/b.diff", &sum)
	require.NoError(t, err)
	require.Equal(t, "https://example.com/b.diff", updated.URL)
	require.Equal(t, sum, *updated.SHA512)
}

func TestRecordBuildResultInvariant(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	p, err := s.CreatePackage(ctx, types.PackageDefinition{Name: "hello"})
	require.NoError(t, err)

	errMsg := "sha512 mismatch"
	require.NoError(t, s.RecordBuildResult(ctx, p.ID, BuildResult{Error: &errMsg}))
	got, err := s.GetPackage(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, types.StatusFailed, got.Status)
	require.Nil(t, got.LastBuiltVersion)
	require.Nil(t, got.LastBuilt)

	version := "1.0.0-1"
	require.NoError(t, s.RecordBuildResult(ctx, p.ID, BuildResult{Version: &version, Files: []string{"hello-1.0.0-1-any.pkg.tar.zst"}}))
	got, err = s.GetPackage(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, types.StatusBuilt, got.Status)
	require.NotNil(t, got.LastBuiltVersion)
	require.NotNil(t, got.LastBuilt)
	require.Nil(t, got.LastError)
}
