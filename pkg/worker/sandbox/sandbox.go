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

// Package sandbox drives bubblewrap-isolated pacman chroots used to build
// AUR packages. A single base tree is created once and cloned per build.
package sandbox

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// Manager owns one bwrap sandbox tree.
type Manager struct {
	// Path is the sandbox root; Path/base is the shared base tree and
	// Path/<name> is a per-build clone.
	Path               string
	PacmanConfigPath   string
	PacmanMirrorlistPath string
}

func New(path, pacmanConfigPath, pacmanMirrorlistPath string) *Manager {
	return &Manager{Path: path, PacmanConfigPath: pacmanConfigPath, PacmanMirrorlistPath: pacmanMirrorlistPath}
}

func (m *Manager) basePath() string {
	return filepath.Join(m.Path, "base")
}

// CreateBase builds the shared base tree, reusing an existing one unless
// force is set.
func (m *Manager) CreateBase(ctx context.Context, force bool) error {
	base := m.basePath()
	if force {
		if err := os.RemoveAll(base); err != nil {
			return fmt.Errorf("removing existing base: %w", err)
		}
	} else if _, err := os.Stat(base); err == nil {
		return nil
	}

	for _, dir := range []string{
		filepath.Join(base, "var", "lib", "pacman"),
		filepath.Join(base, "etc", "pacman.d"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	if err := copyFile(m.PacmanConfigPath, filepath.Join(base, "etc", "pacman.conf")); err != nil {
		return fmt.Errorf("copying pacman.conf: %w", err)
	}
	if err := copyFile(m.PacmanMirrorlistPath, filepath.Join(base, "etc", "pacman.d", "mirrorlist")); err != nil {
		return fmt.Errorf("copying mirrorlist: %w", err)
	}
	if err := os.WriteFile(filepath.Join(base, "etc", "locale.gen"), []byte("en_US.UTF-8 UTF-8"), 0o644); err != nil {
		return fmt.Errorf("writing locale.gen: %w", err)
	}

	cmd := exec.CommandContext(ctx, "fakechroot", "fakeroot", "pacman",
		"-Syu", "--noconfirm",
		"--root", base,
		"--dbpath", filepath.Join(base, "var", "lib", "pacman"),
		"--config", filepath.Join(base, "etc", "pacman.conf"),
		"base", "fakeroot", "base-devel")
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("installing base packages: %w: %s", err, out)
	}

	if _, err := m.RunSandbox(ctx, "base", "/", false, "locale-gen"); err != nil {
		return fmt.Errorf("generating locale: %w", err)
	}
	if _, err := m.RunSandbox(ctx, "base", "/", true, "pacman-key", "--init"); err != nil {
		return fmt.Errorf("initializing pacman keyring: %w", err)
	}
	if _, err := m.RunSandbox(ctx, "base", "/", true, "pacman-key", "--populate"); err != nil {
		return fmt.Errorf("populating pacman keyring: %w", err)
	}
	return nil
}

// CloneForBuild refreshes the base's package indices, clones it to
// Path/<name>, and optionally pre-installs dependency artifacts.
func (m *Manager) CloneForBuild(ctx context.Context, name string, depArtifacts []string) (string, error) {
	if _, err := m.RunSandboxFakeroot(ctx, "base", "/", "pacman", "-Syy"); err != nil {
		return "", fmt.Errorf("refreshing base package indices: %w", err)
	}

	dest := filepath.Join(m.Path, name)
	if err := os.RemoveAll(dest); err != nil {
		return "", fmt.Errorf("removing stale clone: %w", err)
	}
	if err := copyTree(m.basePath(), dest); err != nil {
		return "", fmt.Errorf("cloning base: %w", err)
	}

	if len(depArtifacts) == 0 {
		return dest, nil
	}

	depDir := filepath.Join(dest, "dependencies")
	if err := os.MkdirAll(depDir, 0o755); err != nil {
		return "", fmt.Errorf("creating dependencies dir: %w", err)
	}
	args := []string{"--noconfirm", "-U"}
	for _, artifact := range depArtifacts {
		base := filepath.Base(artifact)
		if err := copyFile(artifact, filepath.Join(depDir, base)); err != nil {
			return "", fmt.Errorf("staging dependency %s: %w", base, err)
		}
		args = append(args, base)
	}
	if _, err := m.RunSandboxFakeroot(ctx, name, "/dependencies", "pacman", args...); err != nil {
		return "", fmt.Errorf("installing dependency artifacts: %w", err)
	}
	return dest, nil
}

// RunSandbox launches bwrap against Path/<name>, optionally wrapping program
// with fakeroot.
func (m *Manager) RunSandbox(ctx context.Context, name, dir string, fakeroot bool, program string, args ...string) ([]byte, error) {
	cmdArgs := []string{
		"--new-session",
		"--bind", filepath.Join(m.Path, name), "/",
		"--ro-bind", "/etc/resolv.conf", "/etc/resolv.conf",
		"--tmpfs", "/tmp",
		"--proc", "/proc",
		"--dev", "/dev",
		"--chdir", dir,
	}
	if fakeroot {
		cmdArgs = append(cmdArgs, "fakeroot", program)
	} else {
		cmdArgs = append(cmdArgs, program)
	}
	cmdArgs = append(cmdArgs, args...)

	cmd := exec.CommandContext(ctx, "bwrap", cmdArgs...)
	cmd.Env = append(os.Environ(), "HOME=/root", "PACMAN_AUTH=fakeroot", "FAKEROOTDONTTRYCHOWN=true")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("bwrap %s in %s: %w: %s", program, name, err, out)
	}
	return out, nil
}

// RunSandboxFakeroot is RunSandbox with fakeroot wrapping enabled.
func (m *Manager) RunSandboxFakeroot(ctx context.Context, name, dir, program string, args ...string) ([]byte, error) {
	return m.RunSandbox(ctx, name, dir, true, program, args...)
}

// Remove discards a per-build clone.
func (m *Manager) Remove(name string) error {
	return os.RemoveAll(filepath.Join(m.Path, name))
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

// copyTree shells out to `cp -a`, matching the portability requirement of
// copying over filesystems that confuse a plain directory walk (bind
// mounts, overlayfs whiteouts).
func copyTree(src, dst string) error {
	cmd := exec.Command("cp", "-a", src, dst)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("cp -a %s %s: %w: %s", src, dst, err, out)
	}
	return nil
}
