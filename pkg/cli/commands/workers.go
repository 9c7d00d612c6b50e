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
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func workersCmd(newClient clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "workers",
		Short: "List connected workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			workers, err := c.GetWorkers(cmd.Context())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATUS\tAUTHENTICATED\tCURRENT JOB")
			for _, w := range workers {
				job := "-"
				if w.CurrentJob != nil {
					job = *w.CurrentJob
				}
				fmt.Fprintf(tw, "%d\t%s\t%v\t%s\n", w.ID, w.Status, w.IsAuthenticated, job)
			}
			return tw.Flush()
		},
	}
}
