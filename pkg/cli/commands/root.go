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

// Package commands implements the aurbuild-cli command tree: workers,
// packages, logs, webhooks, and profiles.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/seifane/aurbuild/pkg/apiclient"
	"github.com/seifane/aurbuild/pkg/cli/profile"
)

// Root builds the top-level aurbuild-cli command.
func Root() *cobra.Command {
	var baseURL, apiKey, profileName string

	cmd := &cobra.Command{
		Use:           "aurbuild-cli",
		Short:         "Operate an aurbuild orchestrator",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "orchestrator base URL, overrides the profile")
	cmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "orchestrator API key, overrides the profile")
	cmd.PersistentFlags().StringVarP(&profileName, "profile", "p", "", "profile name to use, defaults to the saved default profile")

	newClient := func() (*apiclient.Client, error) {
		return resolveClient(baseURL, apiKey, profileName)
	}

	cmd.AddCommand(workersCmd(newClient))
	cmd.AddCommand(packagesCmd(newClient))
	cmd.AddCommand(logsCmd(newClient))
	cmd.AddCommand(webhooksCmd(newClient))
	cmd.AddCommand(profilesCmd())

	return cmd
}

// clientFactory builds an apiclient.Client from the currently parsed flags.
// Passed around instead of a package-level global so each command
// evaluates --base-url/--api-key/--profile only once, after flag parsing.
type clientFactory func() (*apiclient.Client, error)

// resolveClient determines the base URL and API key a command should use:
// explicit --base-url/--api-key win outright (requiring both), otherwise
// the named (or default) profile supplies both.
func resolveClient(baseURL, apiKey, profileName string) (*apiclient.Client, error) {
	if baseURL != "" && apiKey != "" {
		return apiclient.New(baseURL, apiKey), nil
	}
	if baseURL != "" || apiKey != "" {
		return nil, fmt.Errorf("--base-url and --api-key must be given together")
	}

	path, err := profile.DefaultPath()
	if err != nil {
		return nil, err
	}
	cfg, err := profile.Load(path)
	if err != nil {
		return nil, err
	}

	var p profile.Profile
	var ok bool
	if profileName != "" {
		p, ok = cfg.Get(profileName)
		if !ok {
			return nil, fmt.Errorf("profile %q not found", profileName)
		}
	} else {
		p, ok = cfg.GetDefault()
		if !ok {
			return nil, fmt.Errorf("no profile configured; pass --base-url and --api-key, or run 'profiles create'")
		}
	}

	return apiclient.New(p.BaseURL, p.APIKey), nil
}
