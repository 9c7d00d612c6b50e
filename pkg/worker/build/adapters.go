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

package build

import (
	"context"
	"fmt"

	"github.com/seifane/aurbuild/pkg/worker/srcinfo"
)

// fetcher adapts Pipeline to depgraph.SourceFetcher. It is seeded with the
// root target's already-fetched Info so depgraph's own expansion, which
// always visits the target first, doesn't re-clone over the patched
// checkout runBuild already prepared.
type fetcher struct {
	pipeline *Pipeline
	cache    map[string]*srcinfo.Info
}

func (f *fetcher) FetchAndParse(ctx context.Context, name string) (*srcinfo.Info, error) {
	if info, ok := f.cache[name]; ok {
		return info, nil
	}
	if err := f.pipeline.cloneSource(ctx, name); err != nil {
		return nil, err
	}
	info, err := f.pipeline.generateSrcinfo(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("parsing .SRCINFO for %s: %w", name, err)
	}
	if f.cache == nil {
		f.cache = make(map[string]*srcinfo.Info)
	}
	f.cache[name] = info
	return info, nil
}

// repoChecker adapts Pipeline to depgraph.RepoChecker by querying the
// sandbox's own pacman database, the same environment the dependency will
// ultimately be installed into.
type repoChecker struct {
	pipeline *Pipeline
}

func (r *repoChecker) IsRepositoryPackage(ctx context.Context, name string) bool {
	_, err := r.pipeline.Sandbox.RunSandboxFakeroot(ctx, sandboxName, "/", "pacman", "-Ss", "^"+name+"$")
	return err == nil
}
