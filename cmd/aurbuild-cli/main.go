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

// Command aurbuild-cli is the operator-facing client for an aurbuild
// orchestrator: workers, packages, logs, webhooks, and profiles.
package main

import (
	"os"

	"github.com/charmbracelet/log"

	"github.com/seifane/aurbuild/pkg/cli/commands"
)

func main() {
	root := commands.Root()
	if err := root.Execute(); err != nil {
		log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: false}).Error(err)
		os.Exit(1)
	}
}
