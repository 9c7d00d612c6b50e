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
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/seifane/aurbuild/pkg/types"
)

func packagesCmd(newClient clientFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "packages",
		Short: "Manage build packages",
	}

	cmd.AddCommand(packagesListCmd(newClient))
	cmd.AddCommand(packagesGetCmd(newClient))
	cmd.AddCommand(packagesRebuildCmd(newClient))

	return cmd
}

func packagesListCmd(newClient clientFactory) *cobra.Command {
	var search string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List packages",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			pkgs, err := c.GetPackages(cmd.Context(), search)
			if err != nil {
				return err
			}
			printPackageTable(pkgs)
			return nil
		},
	}
	cmd.Flags().StringVar(&search, "search", "", "filter packages by name substring")
	return cmd
}

func packagesGetCmd(newClient clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "get <package>",
		Short: "Show details for a single package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			pkg, err := c.GetPackageByName(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printPackageTable([]*types.Package{pkg})
			return nil
		},
	}
}

func packagesRebuildCmd(newClient clientFactory) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "rebuild [package...]",
		Short: "Mark packages pending, or all packages if none are given",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}

			var ids []int64
			for _, name := range args {
				pkg, err := c.GetPackageByName(cmd.Context(), name)
				if err != nil {
					return err
				}
				ids = append(ids, pkg.ID)
			}

			if err := c.RebuildPackages(cmd.Context(), ids, force); err != nil {
				return err
			}
			if len(ids) == 0 {
				fmt.Println("all packages marked pending")
			} else {
				fmt.Printf("%d package(s) marked pending\n", len(ids))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "rebuild even if the package is already built at its current version")
	return cmd
}

func printPackageTable(pkgs []*types.Package) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tVERSION\tLAST ERROR")
	for _, p := range pkgs {
		version := "-"
		if p.LastBuiltVersion != nil {
			version = *p.LastBuiltVersion
		}
		lastError := "-"
		if p.LastError != nil {
			lastError = *p.LastError
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", strconv.FormatInt(p.ID, 10), p.Name, p.Status, version, lastError)
	}
	_ = tw.Flush()
}
