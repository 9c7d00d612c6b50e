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

// Package orchestrator wires together the store, worker registry,
// repository publisher, webhook manager, dispatch loop, and HTTP API into
// a single runnable server.
package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/chainguard-dev/clog"

	"github.com/seifane/aurbuild/pkg/orchestrator/api"
	"github.com/seifane/aurbuild/pkg/orchestrator/config"
	"github.com/seifane/aurbuild/pkg/orchestrator/dispatch"
	"github.com/seifane/aurbuild/pkg/orchestrator/publish"
	"github.com/seifane/aurbuild/pkg/orchestrator/registry"
	"github.com/seifane/aurbuild/pkg/orchestrator/store"
	"github.com/seifane/aurbuild/pkg/orchestrator/webhook"
	"github.com/seifane/aurbuild/pkg/types"
)

// Orchestrator owns every long-lived orchestrator subsystem.
type Orchestrator struct {
	Config *config.Config

	Store     store.PackageStore
	Registry  *registry.Registry
	Publisher *publish.Publisher
	Webhooks  *webhook.Manager
	Dispatch  *dispatch.Loop
	API       *api.Server
}

// New constructs an Orchestrator from a loaded Config. It seeds the store
// with any packages declared in the config that don't already exist, and
// runs pending database migrations.
func New(ctx context.Context, cfg *config.Config) (*Orchestrator, error) {
	if err := store.RunMigrations(cfg.DBPath); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	pkgStore, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	if err := seedPackages(ctx, pkgStore, cfg.Packages); err != nil {
		return nil, fmt.Errorf("seeding packages: %w", err)
	}

	pub, err := publish.New(cfg.RepoName, cfg.ServePath, cfg.SignKey)
	if err != nil {
		return nil, fmt.Errorf("creating publisher: %w", err)
	}

	reg := registry.New()
	hooks := webhook.New(cfg.Webhooks)

	dispatchLoop := &dispatch.Loop{
		Store:           pkgStore,
		Registry:        reg,
		RebuildInterval: cfg.RebuildTime,
	}

	apiServer := api.New(&api.Server{
		Store:         pkgStore,
		Registry:      reg,
		Publisher:     pub,
		Webhooks:      hooks,
		BuildLogsPath: cfg.LogsPath,
		ServePath:     cfg.ServePath,
		APIKey:        cfg.APIKey,
	})

	return &Orchestrator{
		Config:    cfg,
		Store:     pkgStore,
		Registry:  reg,
		Publisher: pub,
		Webhooks:  hooks,
		Dispatch:  dispatchLoop,
		API:       apiServer,
	}, nil
}

// seedPackages creates every configured package that is not already present
// by name, leaving existing rows (and their build state) untouched.
func seedPackages(ctx context.Context, s store.PackageStore, defs []types.PackageDefinition) error {
	for _, def := range defs {
		_, err := s.GetPackageByName(ctx, def.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("looking up package %q: %w", def.Name, err)
		}
		if _, err := s.CreatePackage(ctx, def); err != nil {
			return fmt.Errorf("creating package %q: %w", def.Name, err)
		}
	}
	return nil
}

// Run starts the dispatch loop. The caller is responsible for running the
// HTTP server (o.API) alongside this, typically via errgroup.
func (o *Orchestrator) Run(ctx context.Context) error {
	clog.FromContext(ctx).Info("starting dispatch loop")
	return o.Dispatch.Run(ctx)
}

// Close releases the underlying store's resources.
func (o *Orchestrator) Close() error {
	return o.Store.Close()
}
