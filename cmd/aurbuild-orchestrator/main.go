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

// Command aurbuild-orchestrator runs the orchestrator process: the HTTP
// API, the worker websocket endpoint, and the dispatch loop.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chainguard-dev/clog"
	"golang.org/x/sync/errgroup"

	"github.com/seifane/aurbuild/pkg/orchestrator"
	"github.com/seifane/aurbuild/pkg/orchestrator/config"
)

var (
	configPath = flag.String("config", "./config/orchestrator.json", "path to the orchestrator JSON config file")
	listenAddr = flag.String("listen-addr", "", "HTTP listen address, overrides the config file's port")
)

func main() {
	flag.Parse()

	logger := clog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	ctx := clog.WithLogger(context.Background(), logger)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)

	if err := run(ctx); err != nil {
		clog.ErrorContext(ctx, "error", "err", err)
		cancel()
		os.Exit(1)
	}
	cancel()
}

func run(ctx context.Context) error {
	log := clog.FromContext(ctx)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	if *listenAddr != "" {
		addr = *listenAddr
	}

	orch, err := orchestrator.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("creating orchestrator: %w", err)
	}
	defer func() {
		if err := orch.Close(); err != nil {
			log.Error("closing orchestrator", "error", err)
		}
	}()

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           orch.API,
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		log.Info("orchestrator API listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		return orch.Run(ctx)
	})

	eg.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return httpServer.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}
