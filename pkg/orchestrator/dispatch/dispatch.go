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

// Package dispatch implements the orchestrator's periodic dispatch loop:
// one coroutine that evaluates the rebuild-interval rule, then hands PENDING
// packages to idle authenticated workers in ascending id order.
package dispatch

import (
	"context"
	"time"

	"github.com/chainguard-dev/clog"

	"github.com/seifane/aurbuild/pkg/orchestrator/registry"
	"github.com/seifane/aurbuild/pkg/orchestrator/store"
	"github.com/seifane/aurbuild/pkg/types"
)

const defaultInterval = 1 * time.Second

// Loop drives assignment. It holds no state of its own beyond its
// dependencies; it is safe to construct fresh each run.
type Loop struct {
	Store           store.PackageStore
	Registry        *registry.Registry
	RebuildInterval int64 // seconds; 0 disables periodic rebuild
	Interval        time.Duration
}

// Run ticks every Interval (default 1s) until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	interval := l.Interval
	if interval == 0 {
		interval = defaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := l.Tick(ctx); err != nil {
				clog.FromContext(ctx).Error("dispatch cycle failed", "error", err)
			}
		}
	}
}

// Tick runs exactly one dispatch cycle: rebuild-interval evaluation followed
// by FIFO assignment. It stops immediately once no idle authenticated
// worker remains, preserving FIFO fairness for the next cycle rather than
// skipping ahead.
func (l *Loop) Tick(ctx context.Context) error {
	if l.RebuildInterval > 0 {
		if _, err := l.Store.SetPackagesRebuild(ctx, l.RebuildInterval); err != nil {
			return err
		}
	}

	for {
		pkg, err := l.Store.GetNextPendingPackage(ctx)
		if err == store.ErrNotFound {
			return nil
		}
		if err != nil {
			return err
		}

		worker := l.Registry.FindIdleAuthenticated()
		if worker == nil {
			return nil
		}

		patches, err := l.Store.GetPatchesForPackage(ctx, pkg.ID)
		if err != nil {
			return err
		}
		patchValues := make([]types.PackagePatch, len(patches))
		for i, p := range patches {
			patchValues[i] = *p
		}

		if err := l.Store.UpdatePackageStatus(ctx, pkg.ID, types.StatusBuilding); err != nil {
			return err
		}

		payload := types.JobSubmitPayload{
			Package:          types.PackageDefinition{Name: pkg.Name, RunBefore: pkg.RunBefore},
			RunBefore:        pkg.RunBefore,
			LastBuiltVersion: pkg.LastBuiltVersion,
			Patches:          patchValues,
		}
		if err := l.Registry.Dispatch(worker, pkg.Name, payload); err != nil {
			clog.FromContext(ctx).Warn("worker rejected dispatch, reverting package to pending", "package", pkg.Name, "error", err)
			if revertErr := l.Store.UpdatePackageStatus(ctx, pkg.ID, types.StatusPending); revertErr != nil {
				return revertErr
			}
			return nil
		}
	}
}
