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

// Package profile stores the CLI's named server profiles (base URL + API
// key pairs) as a JSON file under the user's config directory.
package profile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Profile is one saved server the CLI can talk to.
type Profile struct {
	Name    string `json:"name"`
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key"`
}

// Config is the on-disk profile store: a default profile name plus the
// list of known profiles.
type Config struct {
	Default  string    `json:"default"`
	Profiles []Profile `json:"profiles"`

	path string
}

// DefaultPath returns ~/.config/aurbuild-cli/profiles.json.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "aurbuild-cli", "profiles.json"), nil
}

// Load reads the profile store at path, returning an empty Config if the
// file does not exist yet.
func Load(path string) (*Config, error) {
	cfg := &Config{path: path}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading profile store: %w", err)
	}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parsing profile store: %w", err)
	}
	cfg.path = path
	return cfg, nil
}

// Save writes the profile store back to disk, creating its parent
// directory if needed.
func (c *Config) Save() error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("creating profile store directory: %w", err)
	}
	raw, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding profile store: %w", err)
	}
	if err := os.WriteFile(c.path, raw, 0o600); err != nil {
		return fmt.Errorf("writing profile store: %w", err)
	}
	return nil
}

// Get returns the named profile.
func (c *Config) Get(name string) (Profile, bool) {
	for _, p := range c.Profiles {
		if p.Name == name {
			return p, true
		}
	}
	return Profile{}, false
}

// GetDefault returns the default profile, if one is set.
func (c *Config) GetDefault() (Profile, bool) {
	if c.Default == "" {
		return Profile{}, false
	}
	return c.Get(c.Default)
}

// Add adds a new profile. Adding the first profile makes it the default.
func (c *Config) Add(p Profile) error {
	if _, exists := c.Get(p.Name); exists {
		return fmt.Errorf("profile %q already exists", p.Name)
	}
	c.Profiles = append(c.Profiles, p)
	if c.Default == "" {
		c.Default = p.Name
	}
	return nil
}

// Remove deletes the named profile. If it was the default, the default is
// cleared; the caller must pick a new one explicitly.
func (c *Config) Remove(name string) error {
	if _, exists := c.Get(name); !exists {
		return fmt.Errorf("profile %q does not exist", name)
	}
	kept := c.Profiles[:0]
	for _, p := range c.Profiles {
		if p.Name != name {
			kept = append(kept, p)
		}
	}
	c.Profiles = kept
	if c.Default == name {
		c.Default = ""
	}
	return nil
}

// SetDefault marks an existing profile as the default.
func (c *Config) SetDefault(name string) error {
	if _, exists := c.Get(name); !exists {
		return fmt.Errorf("profile %q does not exist", name)
	}
	c.Default = name
	return nil
}
