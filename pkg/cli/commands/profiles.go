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

package commands

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/seifane/aurbuild/pkg/cli/profile"
)

func profilesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "Manage saved server profiles",
	}

	cmd.AddCommand(profilesListCmd())
	cmd.AddCommand(profilesCreateCmd())
	cmd.AddCommand(profilesDeleteCmd())
	cmd.AddCommand(profilesSetDefaultCmd())

	return cmd
}

func loadProfiles() (*profile.Config, string, error) {
	path, err := profile.DefaultPath()
	if err != nil {
		return nil, "", err
	}
	cfg, err := profile.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func profilesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadProfiles()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tBASE URL\tDEFAULT")
			for _, p := range cfg.Profiles {
				def := ""
				if p.Name == cfg.Default {
					def = "*"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Name, p.BaseURL, def)
			}
			return tw.Flush()
		},
	}
}

func profilesCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Create a new profile interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadProfiles()
			if err != nil {
				return err
			}

			reader := bufio.NewReader(cmd.InOrStdin())
			name, err := prompt(reader, cmd.OutOrStdout(), "Profile name: ")
			if err != nil {
				return err
			}
			baseURL, err := prompt(reader, cmd.OutOrStdout(), "Base URL: ")
			if err != nil {
				return err
			}
			apiKey, err := prompt(reader, cmd.OutOrStdout(), "API key: ")
			if err != nil {
				return err
			}

			if err := cfg.Add(profile.Profile{Name: name, BaseURL: baseURL, APIKey: apiKey}); err != nil {
				return err
			}
			if err := cfg.Save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created profile %q\n", name)
			return nil
		},
	}
}

func profilesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadProfiles()
			if err != nil {
				return err
			}
			if err := cfg.Remove(args[0]); err != nil {
				return err
			}
			if err := cfg.Save(); err != nil {
				return err
			}
			fmt.Printf("deleted profile %q\n", args[0])
			return nil
		},
	}
}

func profilesSetDefaultCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-default <name>",
		Short: "Set a profile as the default",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadProfiles()
			if err != nil {
				return err
			}
			if err := cfg.SetDefault(args[0]); err != nil {
				return err
			}
			if err := cfg.Save(); err != nil {
				return err
			}
			fmt.Printf("default profile set to %q\n", args[0])
			return nil
		},
	}
}

func prompt(reader *bufio.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
