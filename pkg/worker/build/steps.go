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

package build

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/chainguard-dev/clog"

	"github.com/seifane/aurbuild/pkg/types"
	"github.com/seifane/aurbuild/pkg/worker/srcinfo"
)

// cloneSource does a fresh, shallow clone of an AUR package base into the
// sandbox's data directory, discarding any prior clone so every build
// starts from a clean checkout.
func (p *Pipeline) cloneSource(ctx context.Context, name string) error {
	url := fmt.Sprintf("https://aur.archlinux.org/%s.git", name)
	dir := path.Join("data", name)
	if _, err := p.Sandbox.RunSandbox(ctx, sandboxName, "/", false, "rm", "-rf", dir); err != nil {
		return fmt.Errorf("clearing existing clone of %s: %w", name, err)
	}
	if _, err := p.Sandbox.RunSandbox(ctx, sandboxName, "/", false, "git", "clone", "--depth", "1", url, dir); err != nil {
		return fmt.Errorf("cloning %s: %w", name, err)
	}
	return nil
}

// generateSrcinfo runs makepkg --printsrcinfo inside the sandboxed clone
// and parses the result.
func (p *Pipeline) generateSrcinfo(ctx context.Context, name string) (*srcinfo.Info, error) {
	out, err := p.Sandbox.RunSandbox(ctx, sandboxName, path.Join("/data", name), false, "makepkg", "--printsrcinfo")
	if err != nil {
		return nil, err
	}
	return srcinfo.Parse(out)
}

// applyPatches downloads each configured patch, verifies its sha512 when
// one is set, and applies it with git apply inside the sandboxed clone. A
// download failure, checksum mismatch, or apply failure is a build
// failure.
func (p *Pipeline) applyPatches(ctx context.Context, name string, patches []types.PackagePatch, logFile *os.File) error {
	if len(patches) == 0 {
		return nil
	}

	hostPatchDir := filepath.Join(p.Sandbox.Path, sandboxName, "data", name, ".patches")
	if err := os.MkdirAll(hostPatchDir, 0o755); err != nil {
		return fmt.Errorf("creating patch staging dir: %w", err)
	}

	client := p.HTTP
	if client == nil {
		client = http.DefaultClient
	}

	for i, patch := range patches {
		data, err := downloadPatch(ctx, client, patch.URL)
		if err != nil {
			return err
		}
		if patch.SHA512 != nil {
			sum := sha512.Sum512(data)
			if !strings.EqualFold(hex.EncodeToString(sum[:]), *patch.SHA512) {
				return fmt.Errorf("sha512 mismatch for patch %s", patch.URL)
			}
		}

		filename := fmt.Sprintf("%03d.patch", i)
		if err := os.WriteFile(filepath.Join(hostPatchDir, filename), data, 0o644); err != nil {
			return fmt.Errorf("writing patch %s: %w", filename, err)
		}
		if logFile != nil {
			fmt.Fprintf(logFile, "applying patch %s\n", patch.URL)
		}
		if _, err := p.Sandbox.RunSandbox(ctx, sandboxName, path.Join("/data", name), false,
			"git", "apply", path.Join(".patches", filename)); err != nil {
			return fmt.Errorf("applying patch %s: %w", patch.URL, err)
		}
	}
	return nil
}

func downloadPatch(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building patch request for %s: %w", url, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading patch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("downloading patch %s: status %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading patch %s: %w", url, err)
	}
	return data, nil
}

// runBefore runs the package's configured run_before shell command inside
// the sandboxed clone.
func (p *Pipeline) runBefore(ctx context.Context, name, script string, logFile *os.File) error {
	out, err := p.Sandbox.RunSandbox(ctx, sandboxName, path.Join("/data", name), false, "sh", "-c", script)
	if logFile != nil {
		logFile.Write(out)
		logFile.WriteString("\n")
	}
	if err != nil {
		return fmt.Errorf("run_before failed: %w", err)
	}
	return nil
}

// recvPGPKeys best-effort imports every validpgpkeys entry; failures are
// logged as warnings and never fail the build, since a missing key only
// becomes fatal if makepkg itself later refuses to verify a signature.
func (p *Pipeline) recvPGPKeys(ctx context.Context, name string, info *srcinfo.Info) {
	logger := clog.FromContext(ctx)
	for _, key := range info.ValidPGPKeys {
		if _, err := p.Sandbox.RunSandboxFakeroot(ctx, sandboxName, "/", "gpg",
			"--auto-key-locate", "nodefault,wkd", "--receive-keys", key); err != nil {
			logger.Warn("failed to receive PGP key", "package", name, "key", key, "error", err)
		}
	}
}

// build runs makepkg for one package base inside the sandboxed clone.
// installAsDep also installs the built package into the shared sandbox so
// later builds in the same job can see it as a satisfied dependency.
func (p *Pipeline) build(ctx context.Context, name string, installAsDep bool, logFile *os.File) error {
	args := []string{"--syncdeps", "--clean", "--noconfirm"}
	if installAsDep {
		args = append(args, "--install", "--asdeps")
	}
	out, err := p.Sandbox.RunSandboxFakeroot(ctx, sandboxName, path.Join("/data", name), "makepkg", args...)
	if logFile != nil {
		logFile.Write(out)
		logFile.WriteString("\n")
	}
	if err != nil {
		return fmt.Errorf("makepkg failed for %s: %w", name, err)
	}
	return nil
}

// collectArtifacts finds the package archives makepkg produced for name.
func (p *Pipeline) collectArtifacts(name string) ([]string, error) {
	dir := filepath.Join(p.Sandbox.Path, sandboxName, "data", name)
	matches, err := filepath.Glob(filepath.Join(dir, "*.pkg.tar.zst"))
	if err != nil {
		return nil, fmt.Errorf("globbing artifacts for %s: %w", name, err)
	}
	return matches, nil
}

// clearOrphans removes dependencies pacman installed as build-time-only
// (--asdeps) that nothing else in the sandbox now depends on. The sandbox
// clone is discarded immediately afterward, so this mostly documents the
// same cleanup step the non-sandboxed original performed against its host
// pacman database.
func (p *Pipeline) clearOrphans(ctx context.Context) {
	logger := clog.FromContext(ctx)
	out, _ := p.Sandbox.RunSandboxFakeroot(ctx, sandboxName, "/", "pacman", "-Qqtd")

	var orphans []string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			orphans = append(orphans, line)
		}
	}
	if len(orphans) == 0 {
		return
	}

	args := append([]string{"-Rns", "--noconfirm"}, orphans...)
	if _, err := p.Sandbox.RunSandboxFakeroot(ctx, sandboxName, "/", "pacman", args...); err != nil {
		logger.Warn("clearing orphaned dependencies", "error", err)
	}
}
