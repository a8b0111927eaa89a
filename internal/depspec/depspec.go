// Package depspec parses and evaluates the version-constraint expressions
// recipes declare their dependencies with (spec §4.2): a package name
// followed by an optional semver constraint, e.g. "zlib >=1.2.11, <2.0.0".
package depspec

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Dependency is one parsed dependency declaration: a package name and the
// version constraint it must satisfy, if any.
type Dependency struct {
	Name       string
	Constraint *semver.Constraints

	// raw is kept for error messages and for re-emitting the dependency
	// back into recipe source text unchanged.
	raw string
}

// String renders the dependency back to its source form.
func (d Dependency) String() string {
	return d.raw
}

// ErrConditional is returned when a dependency declaration uses the
// "(if <feature> ...)" conditional-dependency syntax. The core has no
// feature-flag evaluator, so conditional dependencies are rejected
// outright at parse time rather than silently ignored or half-evaluated.
var ErrConditional = fmt.Errorf("conditional dependency syntax is not supported")

// Parse parses one dependency declaration of the form "name" or
// "name constraint". A bare name is equivalent to a wildcard constraint
// that matches any version.
func Parse(decl string) (Dependency, error) {
	trimmed := strings.TrimSpace(decl)
	if trimmed == "" {
		return Dependency{}, fmt.Errorf("empty dependency declaration")
	}

	if strings.HasPrefix(trimmed, "(if ") || strings.Contains(trimmed, "(if ") {
		return Dependency{}, fmt.Errorf("%w: %q", ErrConditional, decl)
	}

	fields := strings.SplitN(trimmed, " ", 2)
	name := fields[0]
	if name == "" {
		return Dependency{}, fmt.Errorf("dependency declaration %q has no package name", decl)
	}

	if len(fields) == 1 {
		return Dependency{Name: name, Constraint: nil, raw: trimmed}, nil
	}

	constraintText := strings.TrimSpace(fields[1])
	constraint, err := semver.NewConstraint(constraintText)
	if err != nil {
		return Dependency{}, fmt.Errorf("dependency %q: invalid constraint %q: %w", name, constraintText, err)
	}

	return Dependency{Name: name, Constraint: constraint, raw: trimmed}, nil
}

// ParseAll parses a set of dependency declarations, aggregating every
// parse error instead of stopping at the first one.
func ParseAll(decls []string) ([]Dependency, error) {
	deps := make([]Dependency, 0, len(decls))
	var errs []error
	for _, decl := range decls {
		dep, err := Parse(decl)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		deps = append(deps, dep)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("parsing dependencies: %w", joinErrors(errs))
	}
	return deps, nil
}

// SatisfiedBy reports whether version satisfies the dependency's
// constraint. A dependency with no constraint is satisfied by any
// version string, including one that does not parse.
//
// version is first tried as-is with semver.NewVersion, whose lenient
// parser already accepts truncated versions ("1", "1.2"). If that fails,
// this pads the version with trailing ".0" components and retries after
// each one, up to a full major.minor.patch triple, mirroring how recipe
// authors write loose version numbers in the wild.
//
// Per the semver library's own strictness rule (preserved here
// deliberately, not a gap to be patched): a pre-release version such as
// "1.2.3-beta.1" never satisfies a constraint that does not itself
// mention a pre-release tag, even if the constraint's numeric range
// would otherwise include it.
func (d Dependency) SatisfiedBy(version string) (bool, error) {
	if d.Constraint == nil {
		// No constraint means "any version", and per spec.md §4.2 that
		// includes versions this parser can't make sense of: there is
		// nothing to check the version against, so an unparseable
		// version is still accepted rather than treated as an error.
		return true, nil
	}

	v, err := parseVersionWithPadding(version)
	if err != nil {
		// A real constraint can't be checked against a version that
		// doesn't parse. spec.md §4.2 treats that as "not satisfied",
		// not as an error to propagate.
		return false, nil
	}

	return d.Constraint.Check(v), nil
}

func parseVersionWithPadding(version string) (*semver.Version, error) {
	v, err := semver.NewVersion(version)
	if err == nil {
		return v, nil
	}

	padded := version
	for i := strings.Count(version, "."); i < 2; i++ {
		padded += ".0"
		if v, padErr := semver.NewVersion(padded); padErr == nil {
			return v, nil
		}
	}

	return nil, fmt.Errorf("parsing version %q: %w", version, err)
}

// joinErrors renders a slice of errors as one multi-line error, and also
// supports errors.Is/errors.As against any wrapped error via Unwrap.
type joinedError struct {
	errs []error
}

func joinErrors(errs []error) error {
	return &joinedError{errs: errs}
}

func (j *joinedError) Error() string {
	msgs := make([]string, len(j.errs))
	for i, e := range j.errs {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

func (j *joinedError) Unwrap() []error {
	return j.errs
}
