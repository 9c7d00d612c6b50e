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

package publish

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

// stubBinary writes an executable shell script named name into a temp dir
// and prepends that dir to PATH for the duration of the test, so
// exec.Command("repo-add", ...) and exec.Command("gpg", ...) resolve to it
// instead of requiring the real tools on the test host.
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

func TestPublishEmptyInputIsNoOp(t *testing.T) {
	dir := t.TempDir()
	p, err := New("aurbuild", dir, "")
	require.NoError(t, err)

	before, err := os.ReadDir(dir)
	require.NoError(t, err)

	require.NoError(t, p.Publish(nil))

	after, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Equal(t, len(before), len(after))
}

func TestPublishWithoutSigningRemovesStaleSignatures(t *testing.T) {
	stubBinary(t, "repo-add", "exit 0")
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello-1.0-1.pkg.tar.zst"), []byte("pkg"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello-1.0-1.pkg.tar.zst.sig"), []byte("stale"), 0o644))

	p, err := New("aurbuild", dir, "")
	require.NoError(t, err)
	require.NoError(t, p.Publish([]string{"hello-1.0-1.pkg.tar.zst"}))

	_, err = os.Stat(filepath.Join(dir, "hello-1.0-1.pkg.tar.zst.sig"))
	require.True(t, os.IsNotExist(err))
}

func TestPublishWithSigningInvokesGPG(t *testing.T) {
	stubBinary(t, "repo-add", "exit 0")
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello-1.0-1.pkg.tar.zst"), []byte("pkg"), 0o644))
	// gpg stub creates the output file named by the --output argument.
	stubBinary(t, "gpg", `
while [ "$#" -gt 0 ]; do
  if [ "$1" = "--output" ]; then shift; touch "$1"; fi
  shift
done
`)

	p, err := New("aurbuild", dir, "ABCD1234")
	require.NoError(t, err)
	require.NoError(t, p.Publish([]string{"hello-1.0-1.pkg.tar.zst"}))

	info, err := os.Stat(filepath.Join(dir, "hello-1.0-1.pkg.tar.zst.sig"))
	require.NoError(t, err)
	require.False(t, info.IsDir())
}

func TestPublishSurfacesRepoAddFailure(t *testing.T) {
	stubBinary(t, "repo-add", "exit 1")
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello-1.0-1.pkg.tar.zst"), []byte("pkg"), 0o644))

	p, err := New("aurbuild", dir, "")
	require.NoError(t, err)
	require.Error(t, p.Publish([]string{"hello-1.0-1.pkg.tar.zst"}))
}
