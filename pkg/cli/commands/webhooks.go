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

func webhooksCmd(newClient clientFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhooks",
		Short: "Manage webhooks",
	}

	trigger := &cobra.Command{
		Use:   "trigger",
		Short: "Manually trigger a webhook",
	}

	trigger.AddCommand(&cobra.Command{
		Use:   "package-updated <package>",
		Short: "Manually trigger a package_updated webhook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			if err := c.TriggerPackageUpdatedWebhook(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("triggered package_updated for %s\n", args[0])
			return nil
		},
	})

	cmd.AddCommand(trigger)
	return cmd
}
