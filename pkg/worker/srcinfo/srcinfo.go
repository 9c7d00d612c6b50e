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

// Package srcinfo parses the key/value .SRCINFO format makepkg emits via
// `makepkg --printsrcinfo`.
package srcinfo

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Info is the subset of .SRCINFO fields the build pipeline needs.
type Info struct {
	PkgBase      string
	PkgName      string
	PkgVer       string
	PkgRel       string
	Epoch        string
	Depends      []string
	MakeDepends  []string
	CheckDepends []string
	ValidPGPKeys []string
}

// Version computes pkgver+pkgrel, prefixed with epoch+":" when set, matching
// the version string pacman compares.
func (i Info) Version() string {
	v := i.PkgVer + "-" + i.PkgRel
	if i.Epoch != "" {
		v = i.Epoch + ":" + v
	}
	return v
}

// Generate runs `makepkg --printsrcinfo` in dir and parses its output.
func Generate(ctx context.Context, dir string) (*Info, error) {
	cmd := exec.CommandContext(ctx, "makepkg", "--printsrcinfo")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("running makepkg --printsrcinfo: %w", err)
	}
	return Parse(out)
}

// Parse decodes raw .SRCINFO bytes into an Info.
func Parse(data []byte) (*Info, error) {
	info := &Info{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.Contains(line, "=") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "pkgbase":
			info.PkgBase = value
		case "pkgname":
			if info.PkgName == "" {
				info.PkgName = value
			}
		case "pkgver":
			info.PkgVer = value
		case "pkgrel":
			info.PkgRel = value
		case "epoch":
			info.Epoch = value
		case "depends":
			info.Depends = append(info.Depends, value)
		case "makedepends":
			info.MakeDepends = append(info.MakeDepends, value)
		case "checkdepends":
			info.CheckDepends = append(info.CheckDepends, value)
		case "validpgpkeys":
			info.ValidPGPKeys = append(info.ValidPGPKeys, value)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning .SRCINFO: %w", err)
	}
	if info.PkgBase == "" {
		return nil, fmt.Errorf(".SRCINFO missing pkgbase")
	}
	return info, nil
}

// StripVersionPredicate removes a dependency's version comparator
// (">=", "<=", "=", ":") per spec.md §4.5, returning the bare name.
func StripVersionPredicate(dep string) string {
	for _, sep := range []string{">=", "<=", "=", "<", ">", ":"} {
		if idx := strings.Index(dep, sep); idx != -1 {
			return dep[:idx]
		}
	}
	return dep
}
