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

// Package build runs one worker build job end to end, driving the
// sandbox, dependency graph, source-fetching, and upload-client packages
// through the refresh -> work -> upload -> clean pipeline.
package build

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/chainguard-dev/clog"

	"github.com/seifane/aurbuild/pkg/types"
	"github.com/seifane/aurbuild/pkg/worker/aur"
	"github.com/seifane/aurbuild/pkg/worker/depgraph"
	"github.com/seifane/aurbuild/pkg/worker/sandbox"
	"github.com/seifane/aurbuild/pkg/worker/srcinfo"
	"github.com/seifane/aurbuild/pkg/worker/uploadclient"
)

// sandboxName is the per-build sandbox clone name. A worker only ever runs
// one job at a time, so a single fixed name is reused and torn down at the
// end of every job.
const sandboxName = "current"

// Pipeline ties the worker's local tooling together into one build run.
type Pipeline struct {
	Sandbox       *sandbox.Manager
	AUR           *aur.Client
	Upload        *uploadclient.Client
	BuildLogsPath string
	HTTP          *http.Client // used to download patch files; defaults to http.DefaultClient
}

// StatusPusher reports a worker status transition to the orchestrator.
type StatusPusher func(status types.WorkerStatus, pkg *string) error

// Run executes the full build pipeline for job and returns the outcome to
// upload. It always returns a Result, even on failure: a failed build is a
// normal, worker-reported outcome rather than a transport-level error.
func (p *Pipeline) Run(ctx context.Context, job types.JobSubmitPayload, push StatusPusher) uploadclient.Result {
	name := job.Package.Name
	logger := clog.FromContext(ctx)

	logFile, logPath, err := p.openLog(name)
	if err != nil {
		logger.Error("opening build log", "package", name, "error", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	result := p.runBuild(ctx, job, push, logFile)
	result.PackageName = name
	if logPath != "" {
		result.Logs = []string{logPath}
	}

	if result.Error == "" {
		if err := push(types.WorkerUploading, &name); err != nil {
			logger.Warn("pushing status", "error", err)
		}
	}
	if err := p.Upload.Upload(ctx, result); err != nil {
		logger.Error("uploading build result", "package", name, "error", err)
	}

	if err := push(types.WorkerCleaning, &name); err != nil {
		logger.Warn("pushing status", "error", err)
	}
	p.clearOrphans(ctx)
	if err := p.Sandbox.Remove(sandboxName); err != nil {
		logger.Warn("removing sandbox clone", "error", err)
	}
	if err := push(types.WorkerStandby, nil); err != nil {
		logger.Warn("pushing status", "error", err)
	}

	return result
}

// runBuild performs the refresh/fetch/build steps and returns the Result
// that runBuild's caller will upload. Teardown is always the caller's
// responsibility so it happens the same way on every exit path.
func (p *Pipeline) runBuild(ctx context.Context, job types.JobSubmitPayload, push StatusPusher, logFile *os.File) uploadclient.Result {
	name := job.Package.Name
	logger := clog.FromContext(ctx)

	if err := push(types.WorkerUpdating, &name); err != nil {
		logger.Warn("pushing status", "error", err)
	}
	if _, err := p.Sandbox.CloneForBuild(ctx, sandboxName, nil); err != nil {
		return uploadclient.Result{Error: fmt.Sprintf("refreshing sandbox: %v", err)}
	}

	if err := push(types.WorkerWorking, &name); err != nil {
		logger.Warn("pushing status", "error", err)
	}

	if err := p.cloneSource(ctx, name); err != nil {
		return uploadclient.Result{Error: fmt.Sprintf("cloning source: %v", err)}
	}
	if err := p.applyPatches(ctx, name, job.Patches, logFile); err != nil {
		return uploadclient.Result{Error: err.Error()}
	}

	info, err := p.generateSrcinfo(ctx, name)
	if err != nil {
		return uploadclient.Result{Error: fmt.Sprintf("parsing .SRCINFO: %v", err)}
	}
	version := info.Version()
	if job.LastBuiltVersion != nil && *job.LastBuiltVersion == version {
		logger.Info("version unchanged, skipping build", "package", name, "version", version)
		return uploadclient.Result{Version: version}
	}

	if job.Package.RunBefore != "" {
		if err := p.runBefore(ctx, name, job.Package.RunBefore, logFile); err != nil {
			return uploadclient.Result{Error: err.Error()}
		}
	}

	p.recvPGPKeys(ctx, name, info)

	fetch := &fetcher{pipeline: p, cache: map[string]*srcinfo.Info{name: info}}
	graph, err := depgraph.Build(ctx, name, p.AUR, fetch, &repoChecker{pipeline: p})
	if err != nil {
		return uploadclient.Result{Error: fmt.Sprintf("resolving dependency graph: %v", err)}
	}
	order, err := graph.BuildOrder()
	if err != nil {
		return uploadclient.Result{Error: fmt.Sprintf("ordering dependency graph: %v", err)}
	}

	var additional []string
	for _, dep := range order {
		if err := p.build(ctx, dep, true, logFile); err != nil {
			return uploadclient.Result{Error: fmt.Sprintf("building dependency %s: %v", dep, err)}
		}
		additional = append(additional, dep)
	}

	if err := p.build(ctx, name, false, logFile); err != nil {
		return uploadclient.Result{Error: err.Error()}
	}

	artifacts, err := p.collectArtifacts(name)
	if err != nil {
		return uploadclient.Result{Error: fmt.Sprintf("collecting artifacts: %v", err)}
	}
	logger.Info("build succeeded", "package", name, "version", version, "additional_packages", additional)

	return uploadclient.Result{Version: version, Files: artifacts}
}

func (p *Pipeline) openLog(name string) (*os.File, string, error) {
	if p.BuildLogsPath == "" {
		return nil, "", nil
	}
	if err := os.MkdirAll(p.BuildLogsPath, 0o755); err != nil {
		return nil, "", fmt.Errorf("creating build logs dir: %w", err)
	}
	path := filepath.Join(p.BuildLogsPath, name+".log")
	f, err := os.Create(path)
	if err != nil {
		return nil, "", fmt.Errorf("creating build log for %s: %w", name, err)
	}
	return f, path, nil
}
