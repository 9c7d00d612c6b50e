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

// Package config loads the orchestrator's JSON configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/seifane/aurbuild/pkg/types"
)

// Config is the orchestrator's on-disk configuration.
type Config struct {
	RepoName    string                      `json:"repo_name"`
	SignKey     string                      `json:"sign_key,omitempty"`
	APIKey      string                      `json:"api_key"`
	RebuildTime int64                       `json:"rebuild_time,omitempty"`
	Packages    []types.PackageDefinition   `json:"packages"`
	ServePath   string                      `json:"serve_path,omitempty"`
	DBPath      string                      `json:"db_path,omitempty"`
	LogsPath    string                      `json:"logs_path,omitempty"`
	Port        int                         `json:"port,omitempty"`
	Webhooks    []string                    `json:"webhooks,omitempty"`
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.RepoName == "" {
		return nil, fmt.Errorf("repo_name is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api_key is required")
	}

	if cfg.ServePath == "" {
		cfg.ServePath = "./repo"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./aurbuild.db"
	}
	if cfg.LogsPath == "" {
		cfg.LogsPath = "./logs"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}

	return &cfg, nil
}
