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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{"repo_name": "aurbuild", "api_key": "secret", "packages": []}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "aurbuild", cfg.RepoName)
	require.Equal(t, "./repo", cfg.ServePath)
	require.Equal(t, "./aurbuild.db", cfg.DBPath)
	require.Equal(t, 8080, cfg.Port)
}

func TestLoadRequiresRepoName(t *testing.T) {
	path := writeConfig(t, `{"api_key": "secret"}`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRequiresAPIKey(t *testing.T) {
	path := writeConfig(t, `{"repo_name": "aurbuild"}`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadParsesPackagesAndWebhooks(t *testing.T) {
	path := writeConfig(t, `{
		"repo_name": "aurbuild",
		"api_key": "secret",
		"port": 9000,
		"packages": [{"name": "hello", "run_before": "echo hi"}],
		"webhooks": ["https://example.com/hook"]
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9000, cfg.Port)
	require.Len(t, cfg.Packages, 1)
	require.Equal(t, "hello", cfg.Packages[0].Name)
	require.Equal(t, []string{"https://example.com/hook"}, cfg.Webhooks)
}
