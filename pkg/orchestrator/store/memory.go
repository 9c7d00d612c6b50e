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
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/seifane/aurbuild/pkg/types"
)

// MemoryStore is an in-memory PackageStore, used by unit tests.
type MemoryStore struct {
	mu       sync.Mutex
	packages map[int64]*types.Package
	patches  map[int64]*types.PackagePatch
	nextPkg  int64
	nextPat  int64
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		packages: make(map[int64]*types.Package),
		patches:  make(map[int64]*types.PackagePatch),
	}
}

func clonePackage(p *types.Package) *types.Package {
	cp := *p
	cp.Files = append([]string(nil), p.Files...)
	return &cp
}

func (s *MemoryStore) CreatePackage(ctx context.Context, def types.PackageDefinition) (*types.Package, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.packages {
		if p.Name == def.Name {
			return nil, fmt.Errorf("package %q already exists", def.Name)
		}
	}

	s.nextPkg++
	p := &types.Package{
		ID:        s.nextPkg,
		Name:      def.Name,
		RunBefore: def.RunBefore,
		Status:    types.StatusPending,
		Files:     []string{},
	}
	s.packages[p.ID] = p
	return clonePackage(p), nil
}

func (s *MemoryStore) UpdatePackage(ctx context.Context, id int64, def types.PackageDefinition) (*types.Package, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.packages[id]
	if !ok {
		return nil, ErrNotFound
	}
	p.RunBefore = def.RunBefore
	return clonePackage(p), nil
}

func (s *MemoryStore) UpdatePackageStatus(ctx context.Context, id int64, status types.PackageStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.packages[id]
	if !ok {
		return ErrNotFound
	}
	p.Status = status
	return nil
}

func (s *MemoryStore) DeletePackage(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.packages[id]; !ok {
		return ErrNotFound
	}
	delete(s.packages, id)
	for pid, patch := range s.patches {
		if patch.PackageID == id {
			delete(s.patches, pid)
		}
	}
	return nil
}

func (s *MemoryStore) GetPackage(ctx context.Context, id int64) (*types.Package, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.packages[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clonePackage(p), nil
}

func (s *MemoryStore) GetPackageByName(ctx context.Context, name string) (*types.Package, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.packages {
		if p.Name == name {
			return clonePackage(p), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) sortedIDs() []int64 {
	ids := make([]int64, 0, len(s.packages))
	for id := range s.packages {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *MemoryStore) SearchPackagesByName(ctx context.Context, search string) ([]*types.Package, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*types.Package
	for _, id := range s.sortedIDs() {
		p := s.packages[id]
		if strings.Contains(p.Name, search) {
			out = append(out, clonePackage(p))
		}
	}
	return out, nil
}

func (s *MemoryStore) GetPackages(ctx context.Context) ([]*types.Package, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*types.Package, 0, len(s.packages))
	for _, id := range s.sortedIDs() {
		out = append(out, clonePackage(s.packages[id]))
	}
	return out, nil
}

func (s *MemoryStore) GetNextPendingPackage(ctx context.Context) (*types.Package, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.sortedIDs() {
		p := s.packages[id]
		if p.Status == types.StatusPending {
			return clonePackage(p), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) SetPackagesPending(ctx context.Context, ids []int64, force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var want map[int64]bool
	if ids != nil {
		want = make(map[int64]bool, len(ids))
		for _, id := range ids {
			want[id] = true
		}
	}

	for id, p := range s.packages {
		if want != nil && !want[id] {
			continue
		}
		if !force && p.Status == types.StatusBuilding {
			continue
		}
		p.Status = types.StatusPending
		if force {
			p.LastBuiltVersion = nil
		}
	}
	return nil
}

func (s *MemoryStore) SetPackagesRebuild(ctx context.Context, interval int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-time.Duration(interval) * time.Second)
	n := 0
	for _, p := range s.packages {
		if p.Status != types.StatusBuilt && p.Status != types.StatusFailed {
			continue
		}
		if p.LastBuilt == nil || !p.LastBuilt.Before(cutoff) {
			continue
		}
		p.Status = types.StatusPending
		n++
	}
	return n, nil
}

func (s *MemoryStore) RecordBuildResult(ctx context.Context, id int64, result BuildResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.packages[id]
	if !ok {
		return ErrNotFound
	}
	if result.Error != nil {
		p.Status = types.StatusFailed
		p.LastError = result.Error
		return nil
	}
	now := time.Now()
	p.Status = types.StatusBuilt
	p.LastError = nil
	p.LastBuilt = &now
	p.LastBuiltVersion = result.Version
	p.Files = append([]string(nil), result.Files...)
	return nil
}

func (s *MemoryStore) CreatePatch(ctx context.Context, packageID int64, url string, sha512 *string) (*types.PackagePatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.packages[packageID]; !ok {
		return nil, ErrNotFound
	}
	s.nextPat++
	p := &types.PackagePatch{ID: s.nextPat, PackageID: packageID, URL: url, SHA512: sha512}
	s.patches[p.ID] = p
	return p, nil
}

func (s *MemoryStore) GetPatchesForPackage(ctx context.Context, packageID int64) ([]*types.PackagePatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []int64
	for id, p := range s.patches {
		if p.PackageID == packageID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]*types.PackagePatch, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.patches[id])
	}
	return out, nil
}

func (s *MemoryStore) UpdatePatch(ctx context.Context, id int64, url string, sha512 *string) (*types.PackagePatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.patches[id]
	if !ok {
		return nil, ErrNotFound
	}
	p.URL = url
	p.SHA512 = sha512
	return p, nil
}

func (s *MemoryStore) DeletePatch(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.patches[id]; !ok {
		return ErrNotFound
	}
	delete(s.patches, id)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
