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

// Command aurbuild-worker connects to an orchestrator and runs build jobs
// dispatched to it inside a bwrap sandbox.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chainguard-dev/clog"

	"github.com/seifane/aurbuild/pkg/types"
	"github.com/seifane/aurbuild/pkg/worker/aur"
	"github.com/seifane/aurbuild/pkg/worker/build"
	"github.com/seifane/aurbuild/pkg/worker/config"
	"github.com/seifane/aurbuild/pkg/worker/sandbox"
	"github.com/seifane/aurbuild/pkg/worker/session"
	"github.com/seifane/aurbuild/pkg/worker/uploadclient"
)

var (
	configPath = flag.String("config", "./config/worker.json", "path to the worker JSON config file")

	pacmanConfigPath       = flag.String("pacman-config-path", "", "override pacman_config_path")
	pacmanMirrorlistPath   = flag.String("pacman-mirrorlist-path", "", "override pacman_mirrorlist_path")
	dataPath               = flag.String("data-path", "", "override data_path")
	sandboxPath            = flag.String("sandbox-path", "", "override sandbox_path")
	buildLogsPath          = flag.String("build-logs-path", "", "override build_logs_path")
	baseURL                = flag.String("base-url", "", "override base_url")
	baseURLWS              = flag.String("base-url-ws", "", "override base_url_ws")
	apiKey                 = flag.String("api-key", "", "override api_key")
	forceBaseSandboxCreate = flag.Bool("force-base-sandbox-create", false, "override force_base_sandbox_create")
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

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	cfg, err := config.Load(*configPath, config.Config{
		PacmanConfigPath:       *pacmanConfigPath,
		PacmanMirrorlistPath:   *pacmanMirrorlistPath,
		DataPath:               *dataPath,
		SandboxPath:            *sandboxPath,
		BuildLogsPath:          *buildLogsPath,
		BaseURL:                *baseURL,
		BaseURLWS:              *baseURLWS,
		APIKey:                 *apiKey,
		ForceBaseSandboxCreate: *forceBaseSandboxCreate,
	}, set)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	mgr := sandbox.New(cfg.SandboxPath, cfg.PacmanConfigPath, cfg.PacmanMirrorlistPath)
	log.Info("preparing base sandbox tree", "force", cfg.ForceBaseSandboxCreate)
	if err := mgr.CreateBase(ctx, cfg.ForceBaseSandboxCreate); err != nil {
		return fmt.Errorf("creating base sandbox: %w", err)
	}

	pipeline := &build.Pipeline{
		Sandbox:       mgr,
		AUR:           aur.New(),
		Upload:        uploadclient.New(cfg.BaseURL, cfg.APIKey),
		BuildLogsPath: cfg.BuildLogsPath,
	}

	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := connectAndServe(ctx, cfg, pipeline); err != nil {
			log.Error("session ended", "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
	}
}

// connectAndServe dials the orchestrator and runs jobs it dispatches until
// the connection drops or ctx is cancelled.
func connectAndServe(ctx context.Context, cfg *config.Config, pipeline *build.Pipeline) error {
	log := clog.FromContext(ctx)

	sess, err := session.Dial(ctx, cfg.BaseURLWS, cfg.APIKey)
	if err != nil {
		return fmt.Errorf("dialing orchestrator: %w", err)
	}
	defer sess.Close()

	log.Info("connected to orchestrator", "addr", cfg.BaseURLWS)
	if err := sess.PushStatus(types.WorkerStandby, nil); err != nil {
		log.Warn("pushing initial status", "error", err)
	}

	sess.OnJob = func(ctx context.Context, job types.JobSubmitPayload) {
		log.Info("received job", "package", job.Package.Name)
		result := pipeline.Run(ctx, job, sess.PushStatus)
		if result.Error != "" {
			log.Warn("build failed", "package", job.Package.Name, "error", result.Error)
		} else if len(result.Files) > 0 {
			log.Info("build succeeded", "package", job.Package.Name, "version", result.Version)
		} else {
			log.Info("build skipped, version unchanged", "package", job.Package.Name)
		}
	}

	return sess.Run(ctx)
}
