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
	path := filepath.Join(t.TempDir(), "config_worker.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesFileValuesOverDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"base_url": "http://orchestrator:8080",
		"base_url_ws": "ws://orchestrator:8080",
		"api_key": "secret",
		"data_path": "/srv/data"
	}`)

	cfg, err := Load(path, Config{}, nil)
	require.NoError(t, err)
	require.Equal(t, "/srv/data", cfg.DataPath)
	require.Equal(t, "./worker/sandbox", cfg.SandboxPath)
}

func TestLoadFlagOverridesWinOverFile(t *testing.T) {
	path := writeConfig(t, `{
		"base_url": "http://orchestrator:8080",
		"base_url_ws": "ws://orchestrator:8080",
		"api_key": "secret",
		"data_path": "/srv/data"
	}`)

	cfg, err := Load(path, Config{DataPath: "/tmp/override"}, map[string]bool{"data-path": true})
	require.NoError(t, err)
	require.Equal(t, "/tmp/override", cfg.DataPath)
}

func TestLoadRequiresAPIKey(t *testing.T) {
	path := writeConfig(t, `{"base_url": "x", "base_url_ws": "y"}`)
	_, err := Load(path, Config{}, nil)
	require.Error(t, err)
}
