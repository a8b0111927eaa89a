// Package graph builds the dependency graph of a recipe directory and
// provides the topological sort, constraint validation, and reverse
// dependency queries the lifecycle executor needs to install or remove a
// package in the right order (spec §4.3).
package graph

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"golang.org/x/sync/errgroup"

	"github.com/levitate-pkg/recipe-core/internal/config"
	"github.com/levitate-pkg/recipe-core/internal/depspec"
	"github.com/levitate-pkg/recipe-core/internal/log"
	"github.com/levitate-pkg/recipe-core/internal/recipe"
)

// Edge is one dependency declaration: requester depends on Dep, optionally
// constrained to a version range.
type Edge struct {
	Requester  string
	Dep        string
	Constraint depspec.Dependency
}

// Node is one recipe file's graph-relevant state.
type Node struct {
	Name           string
	Version        string
	Path           string
	Installed      bool
	InstalledAsDep bool
	Deps           []depspec.Dependency
}

// Graph is the full set of recipes discovered under a recipe directory,
// keyed by package name.
type Graph struct {
	Nodes map[string]*Node
}

// CycleError reports a dependency cycle discovered during TopologicalSort.
// Edge is the one that closed the cycle: To is already Processing when
// the sort tries to descend into it again from From.
type CycleError struct {
	From string
	To   string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s -> %s closes a cycle", e.From, e.To)
}

// MissingDependencyError names one (requester, missing) pair found by
// validate_dependencies.
type MissingDependencyError struct {
	Requester string
	Missing   string
}

func (e MissingDependencyError) Error() string {
	return fmt.Sprintf("%s depends on %s, which has no recipe", e.Requester, e.Missing)
}

// MissingDependenciesError aggregates every MissingDependencyError found in
// one pass, never failing fast (spec §4.3 step 1).
type MissingDependenciesError struct {
	Problems []MissingDependencyError
}

func (e *MissingDependenciesError) Error() string {
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		msgs[i] = p.Error()
	}
	return fmt.Sprintf("unresolved dependencies (%d): %s", len(e.Problems), strings.Join(msgs, "; "))
}

func (e *MissingDependenciesError) Unwrap() []error {
	errs := make([]error, len(e.Problems))
	for i, p := range e.Problems {
		errs[i] = p
	}
	return errs
}

// ConstraintViolation names one edge whose declared constraint the dep
// recipe's declared version does not satisfy.
type ConstraintViolation struct {
	Requester  string
	Dep        string
	Constraint string
	Version    string
}

func (v ConstraintViolation) Error() string {
	msg := fmt.Sprintf("%s requires %s %s, but recipe declares version %s", v.Requester, v.Dep, v.Constraint, v.Version)
	if sv, err := semver.NewVersion(v.Version); err == nil && sv.Prerelease() != "" {
		msg += fmt.Sprintf(" (%s is a pre-release version; pre-release versions only satisfy constraints that themselves name a pre-release)", v.Version)
	}
	return msg
}

// ConstraintError aggregates every ConstraintViolation found by
// ValidateConstraints, never failing fast (spec §4.3).
type ConstraintError struct {
	Violations []ConstraintViolation
}

func (e *ConstraintError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.Error()
	}
	return fmt.Sprintf("constraint validation failed (%d problem(s)): %s", len(e.Violations), strings.Join(msgs, "; "))
}

func (e *ConstraintError) Unwrap() []error {
	errs := make([]error, len(e.Violations))
	for i, v := range e.Violations {
		errs[i] = v
	}
	return errs
}

// TargetNotFoundError is returned by ResolveDeps when target has no recipe.
type TargetNotFoundError struct {
	Target string
}

func (e TargetNotFoundError) Error() string {
	return fmt.Sprintf("target %q has no recipe", e.Target)
}

// BuildGraph enumerates every *<config.RecipeExtension> file directly under
// dir (ignoring other files; a missing directory is not an error, it just
// yields an empty graph), extracts version and deps from each via State
// I/O, and inserts one node per recipe. Recipes are parsed concurrently
// with an errgroup since each file's extraction is independent; the result
// map is only written to after the group completes.
func BuildGraph(dir string, logger log.Logger) (*Graph, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return &Graph{Nodes: map[string]*Node{}}, nil
		}
		return nil, fmt.Errorf("reading recipe directory %s: %w", dir, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if filepath.Ext(entry.Name()) != config.RecipeExtension {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}

	nodes := make([]*Node, len(paths))
	g, _ := errgroup.WithContext(context.Background())
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			node, err := loadNode(path, logger)
			if err != nil {
				return err
			}
			nodes[i] = node
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	graph := &Graph{Nodes: make(map[string]*Node, len(nodes))}
	for _, n := range nodes {
		graph.Nodes[n.Name] = n
	}
	return graph, nil
}

func loadNode(path string, logger log.Logger) (*Node, error) {
	r, err := recipe.Load(path)
	if err != nil {
		return nil, err
	}

	deps := make([]depspec.Dependency, 0, len(r.Deps))
	for _, decl := range r.Deps {
		dep, warning := parseDependencyDegraded(decl)
		if warning != "" && logger != nil {
			logger.Warn(warning)
		}
		deps = append(deps, dep)
	}

	return &Node{
		Name:           r.Name,
		Version:        r.Version,
		Path:           path,
		Installed:      r.Installed,
		InstalledAsDep: r.InstalledAsDep,
		Deps:           deps,
	}, nil
}

// parseDependencyDegraded parses decl, degrading to an any-version
// dependency on parse failure rather than erroring: the package name
// (decl's first whitespace-separated field) is preserved, only the
// constraint is dropped. This is the only silent degradation build_graph
// performs; the caller is expected to log the returned warning.
func parseDependencyDegraded(decl string) (depspec.Dependency, string) {
	dep, err := depspec.Parse(decl)
	if err == nil {
		return dep, ""
	}

	name := strings.Fields(strings.TrimSpace(decl))
	if len(name) == 0 {
		return depspec.Dependency{}, fmt.Sprintf("dependency declaration %q is empty and cannot be degraded", decl)
	}

	fallback, ferr := depspec.Parse(name[0])
	if ferr != nil {
		return depspec.Dependency{}, fmt.Sprintf("dependency declaration %q could not be parsed at all: %v", decl, err)
	}
	return fallback, fmt.Sprintf("dependency %q: %v (degraded to any version)", decl, err)
}

// ValidateDependencies checks that every dependency named by a node exists
// as a node in the graph, aggregating every (requester, missing) pair
// instead of failing on the first.
func ValidateDependencies(g *Graph) error {
	var problems []MissingDependencyError
	names := sortedNames(g)
	for _, name := range names {
		node := g.Nodes[name]
		for _, dep := range node.Deps {
			if _, ok := g.Nodes[dep.Name]; !ok {
				problems = append(problems, MissingDependencyError{Requester: name, Missing: dep.Name})
			}
		}
	}
	if len(problems) > 0 {
		return &MissingDependenciesError{Problems: problems}
	}
	return nil
}

type visitState int

const (
	unprocessed visitState = iota
	processing
	processed
)

type frame struct {
	node         string
	nextChildIdx int
}

// TopologicalSort orders every recipe reachable from targets so that every
// dependency appears before its dependents (spec §4.3). It runs
// ValidateDependencies first, then an iterative DFS with an explicit stack
// of (node, next-child-index) pairs to avoid recursion limits on deep
// graphs. A child already Processing closes a cycle; that edge is reported
// directly rather than collecting every cycle in the graph.
func TopologicalSort(g *Graph, targets []string) ([]string, error) {
	if err := ValidateDependencies(g); err != nil {
		return nil, err
	}

	for _, t := range targets {
		if _, ok := g.Nodes[t]; !ok {
			return nil, TargetNotFoundError{Target: t}
		}
	}

	state := make(map[string]visitState, len(g.Nodes))
	var result []string

	for _, root := range targets {
		if state[root] == processed {
			continue
		}

		stack := []frame{{node: root}}
		state[root] = processing

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			node := g.Nodes[top.node]

			if top.nextChildIdx >= len(node.Deps) {
				state[top.node] = processed
				result = append(result, top.node)
				stack = stack[:len(stack)-1]
				continue
			}

			dep := node.Deps[top.nextChildIdx].Name
			top.nextChildIdx++

			switch state[dep] {
			case unprocessed:
				state[dep] = processing
				stack = append(stack, frame{node: dep})
			case processing:
				return nil, &CycleError{From: top.node, To: dep}
			case processed:
				// already emitted; duplicate edges collapse here
			}
		}
	}

	return result, nil
}

// ValidateConstraints runs after TopologicalSort: for every edge
// (requester, dep) with a non-empty constraint, it checks the constraint
// against dep's own declared version. Every failure is aggregated into one
// ConstraintError rather than failing on the first (spec §4.3).
func ValidateConstraints(g *Graph) error {
	var violations []ConstraintViolation
	for _, name := range sortedNames(g) {
		node := g.Nodes[name]
		for _, dep := range node.Deps {
			if dep.Constraint == nil {
				continue
			}
			target, ok := g.Nodes[dep.Name]
			if !ok {
				continue // ValidateDependencies already reports this
			}
			ok2, err := dep.SatisfiedBy(target.Version)
			if err != nil || !ok2 {
				violations = append(violations, ConstraintViolation{
					Requester:  name,
					Dep:        dep.Name,
					Constraint: dep.String(),
					Version:    target.Version,
				})
			}
		}
	}
	if len(violations) > 0 {
		return &ConstraintError{Violations: violations}
	}
	return nil
}

// InstallStep is one (name, path) pair in install order.
type InstallStep struct {
	Name string
	Path string
}

// ResolveDeps composes build_graph's result into the ordered install plan
// for target: validates target exists, sorts with [target] as the only
// root, validates constraints, and returns every recipe in install order
// with target last.
func ResolveDeps(g *Graph, target string) ([]InstallStep, error) {
	if _, ok := g.Nodes[target]; !ok {
		return nil, TargetNotFoundError{Target: target}
	}

	order, err := TopologicalSort(g, []string{target})
	if err != nil {
		return nil, err
	}

	if err := ValidateConstraints(g); err != nil {
		return nil, err
	}

	steps := make([]InstallStep, len(order))
	for i, name := range order {
		steps[i] = InstallStep{Name: name, Path: g.Nodes[name].Path}
	}
	return steps, nil
}

// ReverseDeps returns the names of every node that directly depends on
// pkg.
func ReverseDeps(g *Graph, pkg string) []string {
	var deps []string
	for _, name := range sortedNames(g) {
		node := g.Nodes[name]
		for _, dep := range node.Deps {
			if dep.Name == pkg {
				deps = append(deps, name)
				break
			}
		}
	}
	return deps
}

// FindOrphans returns the names of every installed package whose
// InstalledAsDep flag is true and which has no installed reverse
// dependency (spec §4.3).
func FindOrphans(g *Graph) []string {
	var orphans []string
	for _, name := range sortedNames(g) {
		node := g.Nodes[name]
		if !node.Installed || !node.InstalledAsDep {
			continue
		}

		hasInstalledDependent := false
		for _, reverse := range ReverseDeps(g, name) {
			if g.Nodes[reverse].Installed {
				hasInstalledDependent = true
				break
			}
		}
		if !hasInstalledDependent {
			orphans = append(orphans, name)
		}
	}
	return orphans
}

func sortedNames(g *Graph) []string {
	names := make([]string, 0, len(g.Nodes))
	for name := range g.Nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
