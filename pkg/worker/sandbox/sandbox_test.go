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

package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func stubBinary(t *testing.T, name, script string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell-script stub unsupported on windows")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))

	oldPath := os.Getenv("PATH")
	require.NoError(t, os.Setenv("PATH", dir+string(os.PathListSeparator)+oldPath))
	t.Cleanup(func() { _ = os.Setenv("PATH", oldPath) })
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	dir := t.TempDir()
	conf := filepath.Join(dir, "pacman.conf")
	mirror := filepath.Join(dir, "mirrorlist")
	require.NoError(t, os.WriteFile(conf, []byte("[options]\n"), 0o644))
	require.NoError(t, os.WriteFile(mirror, []byte("Server = https://example.com/$repo/os/$arch\n"), 0o644))
	return New(filepath.Join(dir, "sandbox"), conf, mirror)
}

func TestCreateBaseWritesConfigAndRunsTools(t *testing.T) {
	stubBinary(t, "fakechroot", "shift; shift; exit 0")
	stubBinary(t, "bwrap", "exit 0")

	m := newTestManager(t)
	require.NoError(t, m.CreateBase(context.Background(), false))

	_, err := os.Stat(filepath.Join(m.basePath(), "etc", "pacman.conf"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(m.basePath(), "etc", "pacman.d", "mirrorlist"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(m.basePath(), "etc", "locale.gen"))
	require.NoError(t, err)
}

func TestCreateBaseSkipsExistingUnlessForced(t *testing.T) {
	stubBinary(t, "fakechroot", "exit 1") // would fail the test if invoked
	stubBinary(t, "bwrap", "exit 1")

	m := newTestManager(t)
	require.NoError(t, os.MkdirAll(m.basePath(), 0o755))

	require.NoError(t, m.CreateBase(context.Background(), false))
}

func TestCloneForBuildCopiesBaseTree(t *testing.T) {
	stubBinary(t, "bwrap", "exit 0")
	stubBinary(t, "cp", `
# emulate "cp -a SRC DST" with a plain recursive copy for the test stub
args="$@"
src="$2"
dst="$3"
mkdir -p "$dst"
(cd "$src" && tar cf - .) | (cd "$dst" && tar xf -)
`)

	m := newTestManager(t)
	require.NoError(t, os.MkdirAll(m.basePath(), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(m.basePath(), "marker"), []byte("x"), 0o644))

	dest, err := m.CloneForBuild(context.Background(), "build-1", nil)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dest, "marker"))
	require.NoError(t, err)
}

func TestRunSandboxSurfacesNonzeroExit(t *testing.T) {
	stubBinary(t, "bwrap", "exit 7")

	m := newTestManager(t)
	_, err := m.RunSandbox(context.Background(), "base", "/", false, "false")
	require.Error(t, err)
}
