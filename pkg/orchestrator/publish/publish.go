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

// Package publish implements the repository publisher: the single writer
// of the served Pacman repository. Regeneration of the repository database
// is serialized by Publisher's mutex so it is never concurrent.
package publish

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
)

// Publisher is a singleton within the orchestrator. There is exactly one
// Publisher per served repository.
type Publisher struct {
	mu sync.Mutex

	// RepoName is the base name used for <RepoName>.db.tar.gz.
	RepoName string
	// Path is the serve directory the database and artifacts live in.
	Path string
	// SignKey, if set, is passed to gpg/repo-add for detached signing.
	SignKey string
}

// New creates the serve directory if it does not already exist.
func New(repoName, path, signKey string) (*Publisher, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("creating serve directory: %w", err)
	}
	return &Publisher{RepoName: repoName, Path: path, SignKey: signKey}, nil
}

// Publish ingests files (paths relative to Path) into the repository
// database. Given an empty files list it is a no-op returning nil
// (idempotence law). Any nonzero subprocess exit is surfaced as an error;
// the caller marks the owning package FAILED.
func (p *Publisher) Publish(files []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(files) == 0 {
		return nil
	}

	if err := p.signOrCleanSignatures(files); err != nil {
		return err
	}
	return p.repoAdd(files)
}

func (p *Publisher) signOrCleanSignatures(files []string) error {
	for _, f := range files {
		sigPath := filepath.Join(p.Path, f+".sig")
		if p.SignKey == "" {
			if err := os.Remove(sigPath); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("removing stale signature for %s: %w", f, err)
			}
			continue
		}

		cmd := exec.Command("gpg", "--default-key", p.SignKey, "--yes",
			"--output", sigPath, "--detach-sig", filepath.Join(p.Path, f))
		cmd.Dir = p.Path
		if out, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("signing %s: %w: %s", f, err, out)
		}
	}
	return nil
}

func (p *Publisher) repoAdd(files []string) error {
	args := []string{"--remove"}
	if p.SignKey != "" {
		args = append(args, "--verify", "--sign", "--key", p.SignKey)
	}
	args = append(args, p.RepoName+".db.tar.gz")
	args = append(args, files...)

	cmd := exec.Command("repo-add", args...)
	cmd.Dir = p.Path
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("repo-add failed: %w: %s", err, out)
	}
	return nil
}
