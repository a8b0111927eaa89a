// Package recipe implements the on-disk recipe data model (spec §3): the
// typed state variables and phase functions a recipe carries, a
// line-oriented reader/writer that never executes the recipe (§4.1), and
// the pre-execution validator (§4.8).
package recipe

import "fmt"

// Required and optional phase function names a recipe may define. The
// embedded script engine (internal/script) introspects which of these are
// actually bound; the validator (validator.go) checks the required ones
// are present.
const (
	FuncAcquire     = "acquire"
	FuncBuild       = "build"
	FuncInstall     = "install"
	FuncIsInstalled = "is_installed"
	FuncPreInstall  = "pre_install"
	FuncPostInstall = "post_install"
	FuncRemove      = "remove"
	FuncPreRemove   = "pre_remove"
	FuncPostRemove  = "post_remove"
	FuncCheckUpdate = "check_update"
	FuncResolve     = "resolve"
)

var RequiredFuncs = []string{FuncAcquire, FuncInstall}

var OptionalFuncs = []string{
	FuncBuild, FuncIsInstalled, FuncPreInstall, FuncPostInstall,
	FuncRemove, FuncPreRemove, FuncPostRemove, FuncCheckUpdate, FuncResolve,
}

// Recipe is the in-memory view of a recipe file's state variables,
// populated by Load without running the recipe's Starlark code.
type Recipe struct {
	Path string

	Name      string
	Version   string
	Installed bool

	Description *string
	License     *string
	Homepage    *string
	Deps        []string
	BuildDeps   []string

	InstalledVersion *string
	InstalledAt      *int64
	InstalledFiles   []string

	// InstalledAsDep marks a package pulled in solely to satisfy another
	// package's dependency, rather than installed as an explicit target.
	// find_orphans (internal/graph) uses this to find packages nothing
	// still depends on.
	InstalledAsDep bool
}

// Load reads every known state variable from path using GetVar, building a
// Recipe. Missing variables are left at their zero value; Load does not
// enforce required-ness — that is the validator's job (validator.go), run
// against a freshly compiled scope per §4.8.
func Load(path string) (*Recipe, error) {
	r := &Recipe{Path: path}

	name, _, err := getString(path, "name")
	if err != nil {
		return nil, err
	}
	if name != nil {
		r.Name = *name
	}

	version, _, err := getString(path, "version")
	if err != nil {
		return nil, err
	}
	if version != nil {
		r.Version = *version
	}

	installed, found, err := getBool(path, "installed")
	if err != nil {
		return nil, err
	}
	if found {
		r.Installed = installed
	}

	if r.Description, err = optionalString(path, "description"); err != nil {
		return nil, err
	}
	if r.License, err = optionalString(path, "license"); err != nil {
		return nil, err
	}
	if r.Homepage, err = optionalString(path, "homepage"); err != nil {
		return nil, err
	}

	deps, _, err := getStringArray(path, "deps")
	if err != nil {
		return nil, err
	}
	r.Deps = deps

	buildDeps, _, err := getStringArray(path, "build_deps")
	if err != nil {
		return nil, err
	}
	r.BuildDeps = buildDeps

	if r.InstalledVersion, err = optionalString(path, "installed_version"); err != nil {
		return nil, err
	}

	installedAt, foundAt, err := getInt(path, "installed_at")
	if err != nil {
		return nil, err
	}
	if foundAt {
		r.InstalledAt = &installedAt
	}

	installedFiles, foundFiles, err := getStringArray(path, "installed_files")
	if err != nil {
		return nil, err
	}
	if foundFiles {
		r.InstalledFiles = installedFiles
	}

	installedAsDep, _, err := getBool(path, "installed_as_dep")
	if err != nil {
		return nil, err
	}
	r.InstalledAsDep = installedAsDep

	return r, nil
}

// Persist writes the state variables the lifecycle executor owns back into
// the recipe in a single atomic rewrite (spec §4.9 step 9 / §6). asDep
// marks the package as pulled in solely to satisfy another's dependency;
// installing a recipe as an explicit target always passes false.
func Persist(path string, installed bool, version string, installedAt int64, installedFiles []string, asDep bool) error {
	return SetVars(path, map[string]Value{
		"installed":         BoolValue(installed),
		"installed_version": StringValue(version),
		"installed_at":      IntValue(installedAt),
		"installed_files":   StringArrayValue(installedFiles),
		"installed_as_dep":  BoolValue(asDep),
	})
}

// ClearInstalledState resets the persisted variables after a successful
// remove (spec §4.9 "remove").
func ClearInstalledState(path string) error {
	return SetVars(path, map[string]Value{
		"installed":         BoolValue(false),
		"installed_version": NilValue(),
		"installed_at":      NilValue(),
		"installed_files":   StringArrayValue(nil),
		"installed_as_dep":  BoolValue(false),
	})
}

func getString(path, name string) (*string, bool, error) {
	v, found, err := GetVar(path, name)
	if err != nil || !found {
		return nil, found, err
	}
	if v.IsNil() {
		return nil, true, nil
	}
	s, ok := v.String()
	if !ok {
		return nil, true, fmt.Errorf("%s: %s is not a string", path, name)
	}
	return &s, true, nil
}

func optionalString(path, name string) (*string, error) {
	s, _, err := getString(path, name)
	return s, err
}

func getBool(path, name string) (bool, bool, error) {
	v, found, err := GetVar(path, name)
	if err != nil || !found {
		return false, found, err
	}
	b, ok := v.Bool()
	if !ok {
		return false, true, fmt.Errorf("%s: %s is not a bool", path, name)
	}
	return b, true, nil
}

func getInt(path, name string) (int64, bool, error) {
	v, found, err := GetVar(path, name)
	if err != nil || !found {
		return 0, found, err
	}
	if v.IsNil() {
		return 0, false, nil
	}
	i, ok := v.Int()
	if !ok {
		return 0, true, fmt.Errorf("%s: %s is not an int", path, name)
	}
	return i, true, nil
}

func getStringArray(path, name string) ([]string, bool, error) {
	v, found, err := GetVar(path, name)
	if err != nil || !found {
		return nil, found, err
	}
	if v.IsNil() {
		return nil, true, nil
	}
	arr, ok := v.StringArray()
	if !ok {
		return nil, true, fmt.Errorf("%s: %s is not an array of strings", path, name)
	}
	return arr, true, nil
}
