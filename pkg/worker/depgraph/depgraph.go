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

// Package depgraph builds the AUR dependency graph rooted at a target
// package, by recursively fetching and parsing each dependency's source
// metadata, resolving provides-names against the AUR RPC, and rejecting
// cycles and runaway recursion.
package depgraph

import (
	"context"
	"fmt"
	"sort"

	"github.com/seifane/aurbuild/pkg/worker/aur"
	"github.com/seifane/aurbuild/pkg/worker/srcinfo"
)

const maxDepth = 20

// Node is one AUR package base discovered during expansion.
type Node struct {
	Name    string
	Depends []string // AUR dependency bases, not repository packages
}

// SourceFetcher clones (or reuses an existing clone of) a package base and
// parses its .SRCINFO.
type SourceFetcher interface {
	FetchAndParse(ctx context.Context, packageBase string) (*srcinfo.Info, error)
}

// RepoChecker reports whether a name resolves in the sandbox's package
// database, i.e. it is a repository package rather than an AUR one.
type RepoChecker interface {
	IsRepositoryPackage(ctx context.Context, name string) bool
}

// Graph is the set of AUR nodes and edges discovered rooted at one target.
type Graph struct {
	Root  string
	nodes map[string]*Node
	edges map[string]map[string]bool
}

func newGraph(root string) *Graph {
	return &Graph{
		Root:  root,
		nodes: make(map[string]*Node),
		edges: make(map[string]map[string]bool),
	}
}

// Nodes returns every node, including the root, in no particular order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	return out
}

func (g *Graph) addEdge(from, to string) error {
	if g.edges[from] == nil {
		g.edges[from] = make(map[string]bool)
	}
	if g.edges[from][to] {
		return nil // duplicate edge: no-op
	}
	if g.edges[to][from] {
		return fmt.Errorf("cycle detected between %s and %s", from, to)
	}
	g.edges[from][to] = true
	return nil
}

// Build recursively expands the AUR dependency DAG rooted at target, per
// spec.md §4.5: partition each node's depends/makedepends/checkdepends into
// repository (skipped) and AUR (resolved via provides, recursed into),
// bounded to maxDepth.
func Build(ctx context.Context, target string, aurClient *aur.Client, fetcher SourceFetcher, repoChecker RepoChecker) (*Graph, error) {
	g := newGraph(target)
	if err := g.expand(ctx, target, 0, aurClient, fetcher, repoChecker); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Graph) expand(ctx context.Context, name string, depth int, aurClient *aur.Client, fetcher SourceFetcher, repoChecker RepoChecker) error {
	if depth > maxDepth {
		return fmt.Errorf("max depth reached resolving %s", name)
	}
	if _, exists := g.nodes[name]; exists {
		return nil
	}

	info, err := fetcher.FetchAndParse(ctx, name)
	if err != nil {
		return fmt.Errorf("fetching source metadata for %s: %w", name, err)
	}

	node := &Node{Name: name}
	g.nodes[name] = node

	seen := make(map[string]bool)
	var allDeps []string
	allDeps = append(allDeps, info.Depends...)
	allDeps = append(allDeps, info.MakeDepends...)
	allDeps = append(allDeps, info.CheckDepends...)

	for _, raw := range allDeps {
		depName := srcinfo.StripVersionPredicate(raw)
		if depName == "" || seen[depName] {
			continue
		}
		seen[depName] = true

		if repoChecker.IsRepositoryPackage(ctx, depName) {
			continue
		}

		base := aurClient.ResolveBase(ctx, depName)
		if base == name {
			continue // self-provides, not a real dependency edge
		}
		if err := g.addEdge(name, base); err != nil {
			return err
		}
		if err := g.expand(ctx, base, depth+1, aurClient, fetcher, repoChecker); err != nil {
			return err
		}
		node.Depends = append(node.Depends, base)
	}
	return nil
}

// BuildOrder returns every AUR dependency (excluding the root) in
// dependency order via Kahn's algorithm: a node always appears after every
// node it depends on, so building deepest-first is simply iterating this
// slice in order.
func (g *Graph) BuildOrder() ([]string, error) {
	inDegree := make(map[string]int, len(g.nodes))
	for name := range g.nodes {
		inDegree[name] = 0
	}
	for _, node := range g.nodes {
		for range node.Depends {
			inDegree[node.Name]++
		}
	}

	var queue []string
	for name, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, name)
		}
	}
	sort.Strings(queue)

	var order []string
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		order = append(order, name)

		for _, node := range g.nodes {
			for _, dep := range node.Depends {
				if dep != name {
					continue
				}
				inDegree[node.Name]--
				if inDegree[node.Name] == 0 {
					queue = append(queue, node.Name)
					sort.Strings(queue)
				}
			}
		}
	}

	if len(order) != len(g.nodes) {
		return nil, fmt.Errorf("cycle detected while ordering dependency graph")
	}

	// Drop the root: it is built separately as the final target step.
	result := make([]string, 0, len(order)-1)
	for _, name := range order {
		if name != g.Root {
			result = append(result, name)
		}
	}
	return result, nil
}
