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

	"github.com/spf13/cobra"
)

func logsCmd(newClient clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "logs <package>",
		Short: "Fetch the latest build log for a package",
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
			logs, err := c.GetLogs(cmd.Context(), pkg.ID)
			if err != nil {
				return err
			}
			fmt.Print(logs)
			return nil
		},
	}
}
