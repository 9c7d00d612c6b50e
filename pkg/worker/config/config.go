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

// Package config loads the worker's configuration: a JSON file with
// command-line flag overrides layered on top, matching the orchestrator
// main's flag style.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config is the resolved worker configuration.
type Config struct {
	PacmanConfigPath    string `json:"pacman_config_path"`
	PacmanMirrorlistPath string `json:"pacman_mirrorlist_path"`

	DataPath      string `json:"data_path"`
	SandboxPath   string `json:"sandbox_path"`
	BuildLogsPath string `json:"build_logs_path"`

	BaseURL   string `json:"base_url"`
	BaseURLWS string `json:"base_url_ws"`
	APIKey    string `json:"api_key"`

	ForceBaseSandboxCreate bool `json:"force_base_sandbox_create"`
}

// fileConfig mirrors Config with every field optional, for JSON decoding
// before defaults are applied.
type fileConfig struct {
	PacmanConfigPath       *string `json:"pacman_config_path"`
	PacmanMirrorlistPath   *string `json:"pacman_mirrorlist_path"`
	DataPath               *string `json:"data_path"`
	SandboxPath            *string `json:"sandbox_path"`
	BuildLogsPath          *string `json:"build_logs_path"`
	BaseURL                *string `json:"base_url"`
	BaseURLWS              *string `json:"base_url_ws"`
	APIKey                 *string `json:"api_key"`
	ForceBaseSandboxCreate *bool   `json:"force_base_sandbox_create"`
}

// Load reads the JSON config at configPath, then layers overrides on top
// for every key present in set (as produced by flag.FlagSet.Visit, which
// only reports flags the caller explicitly passed). Flags take precedence
// over file values; file values take precedence over built-in defaults.
func Load(configPath string, overrides Config, set map[string]bool) (*Config, error) {
	raw, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("reading worker config %s: %w", configPath, err)
	}
	var fc fileConfig
	if err := json.Unmarshal(raw, &fc); err != nil {
		return nil, fmt.Errorf("parsing worker config %s: %w", configPath, err)
	}

	cfg := &Config{
		PacmanConfigPath:       "./config/pacman.conf",
		PacmanMirrorlistPath:   "./config/mirrorlist",
		DataPath:               "./worker/data",
		SandboxPath:            "./worker/sandbox",
		BuildLogsPath:          "./worker/logs",
	}

	applyString(&cfg.PacmanConfigPath, fc.PacmanConfigPath)
	applyString(&cfg.PacmanMirrorlistPath, fc.PacmanMirrorlistPath)
	applyString(&cfg.DataPath, fc.DataPath)
	applyString(&cfg.SandboxPath, fc.SandboxPath)
	applyString(&cfg.BuildLogsPath, fc.BuildLogsPath)
	applyString(&cfg.BaseURL, fc.BaseURL)
	applyString(&cfg.BaseURLWS, fc.BaseURLWS)
	applyString(&cfg.APIKey, fc.APIKey)
	if fc.ForceBaseSandboxCreate != nil {
		cfg.ForceBaseSandboxCreate = *fc.ForceBaseSandboxCreate
	}

	if set["pacman-config-path"] {
		cfg.PacmanConfigPath = overrides.PacmanConfigPath
	}
	if set["pacman-mirrorlist-path"] {
		cfg.PacmanMirrorlistPath = overrides.PacmanMirrorlistPath
	}
	if set["data-path"] {
		cfg.DataPath = overrides.DataPath
	}
	if set["sandbox-path"] {
		cfg.SandboxPath = overrides.SandboxPath
	}
	if set["build-logs-path"] {
		cfg.BuildLogsPath = overrides.BuildLogsPath
	}
	if set["base-url"] {
		cfg.BaseURL = overrides.BaseURL
	}
	if set["base-url-ws"] {
		cfg.BaseURLWS = overrides.BaseURLWS
	}
	if set["api-key"] {
		cfg.APIKey = overrides.APIKey
	}
	if set["force-base-sandbox-create"] {
		cfg.ForceBaseSandboxCreate = overrides.ForceBaseSandboxCreate
	}

	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base_url is required (file or -base-url)")
	}
	if cfg.BaseURLWS == "" {
		return nil, fmt.Errorf("base_url_ws is required (file or -base-url-ws)")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api_key is required (file or -api-key)")
	}

	return cfg, nil
}

func applyString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}
