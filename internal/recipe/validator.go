package recipe

import (
	"fmt"
	"strings"
)

// FieldError names one validation problem with a single field or function.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError aggregates every problem found by Validate. Error()
// renders all of them on one message (never fail-fast, per spec §4.8);
// Unwrap supports errors.Is/errors.As against any individual FieldError.
type ValidationError struct {
	Errors []error
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("recipe validation failed (%d problem(s)): %s", len(e.Errors), strings.Join(msgs, "; "))
}

func (e *ValidationError) Unwrap() []error {
	return e.Errors
}

// Validate loads the recipe at path and checks the invariants spec §4.8
// requires before any phase function runs: required variables present,
// name/version non-empty, installed is a bool, the installed-implies-
// installed_version-and-installed_files invariant, and every required
// function present in definedFuncs (as introspected from the compiled
// script by internal/script). Every problem found is aggregated into one
// ValidationError rather than stopping at the first.
func Validate(path string, definedFuncs map[string]bool) (*Recipe, error) {
	r, err := Load(path)
	if err != nil {
		return nil, err
	}

	var errs []error

	nameVal, nameFound, _ := GetVar(path, "name")
	switch {
	case !nameFound || nameVal.IsNil():
		errs = append(errs, FieldError{"name", "is required"})
	default:
		if s, ok := nameVal.String(); !ok {
			errs = append(errs, FieldError{"name", "must be a string"})
		} else if s == "" {
			errs = append(errs, FieldError{"name", "must be non-empty"})
		}
	}

	versionVal, versionFound, _ := GetVar(path, "version")
	switch {
	case !versionFound || versionVal.IsNil():
		errs = append(errs, FieldError{"version", "is required"})
	default:
		if s, ok := versionVal.String(); !ok {
			errs = append(errs, FieldError{"version", "must be a string"})
		} else if s == "" {
			errs = append(errs, FieldError{"version", "must be non-empty"})
		}
	}

	installedVal, installedFound, _ := GetVar(path, "installed")
	if !installedFound {
		errs = append(errs, FieldError{"installed", "is required"})
	} else if _, ok := installedVal.Bool(); !ok {
		errs = append(errs, FieldError{"installed", "must be a bool"})
	}

	if r.Installed {
		if r.InstalledVersion == nil {
			errs = append(errs, FieldError{"installed_version", "must be set when installed is true"})
		}
		if r.InstalledFiles == nil {
			errs = append(errs, FieldError{"installed_files", "must be set when installed is true"})
		}
	}

	for _, fn := range RequiredFuncs {
		if !definedFuncs[fn] {
			errs = append(errs, FieldError{fn, "is a required function but is not defined"})
		}
	}

	if len(errs) > 0 {
		return r, &ValidationError{Errors: errs}
	}
	return r, nil
}
