// Package lifecycle implements the executor that runs a recipe's phase
// functions in order and commits the result into the real prefix (spec
// §4.9): install, remove, update, upgrade, and resolve, each composing
// internal/lockfile, internal/stage, internal/script, internal/execctx,
// internal/recipe, and internal/helpers.
package lifecycle

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Masterminds/semver/v3"
	"go.starlark.net/starlark"

	"github.com/levitate-pkg/recipe-core/internal/config"
	"github.com/levitate-pkg/recipe-core/internal/execctx"
	"github.com/levitate-pkg/recipe-core/internal/helpers"
	"github.com/levitate-pkg/recipe-core/internal/installdb"
	"github.com/levitate-pkg/recipe-core/internal/lockfile"
	"github.com/levitate-pkg/recipe-core/internal/log"
	"github.com/levitate-pkg/recipe-core/internal/pathsafe"
	"github.com/levitate-pkg/recipe-core/internal/recipe"
	"github.com/levitate-pkg/recipe-core/internal/script"
	"github.com/levitate-pkg/recipe-core/internal/stage"
)

// PhaseError names the phase function that failed and wraps its
// underlying error (spec §7 "Phase function failure").
type PhaseError struct {
	Phase string
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("phase %q failed: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

// CommitError wraps a failure while merging staged files into the real
// prefix. Already-committed files are left in place; the recipe is never
// marked installed when this is returned (spec §7 "Commit I/O").
type CommitError struct {
	Err error
}

func (e *CommitError) Error() string { return fmt.Sprintf("commit failed: %v", e.Err) }
func (e *CommitError) Unwrap() error { return e.Err }

// RemoveError wraps a failure deleting one of a recipe's installed files.
// The recipe's installed state is always preserved when this is returned
// (spec §7 "Remove I/O", invariant 7).
type RemoveError struct {
	Err error
}

func (e *RemoveError) Error() string { return fmt.Sprintf("remove failed: %v", e.Err) }
func (e *RemoveError) Unwrap() error { return e.Err }

// ErrNotInstalled is returned by Remove and Upgrade when the recipe's
// installed state variable is not true.
var ErrNotInstalled = fmt.Errorf("recipe is not installed")

// ErrAlreadyInstalled is returned by Install when the idempotency check
// (spec §4.9 step 6) confirms the package is already present.
var ErrAlreadyInstalled = fmt.Errorf("recipe is already installed")

// Executor runs the lifecycle operations against one recipe directory and
// prefix.
type Executor struct {
	Config *config.Config
	Logger log.Logger
}

// New builds an Executor. A nil logger falls back to the package default.
func New(cfg *config.Config, logger log.Logger) *Executor {
	if logger == nil {
		logger = log.Default()
	}
	return &Executor{Config: cfg, Logger: logger}
}

// lockRetryInterval is the poll interval between busy-lock retries while
// within Config.LockTimeout.
const lockRetryInterval = 100 * time.Millisecond

// acquireLock takes the recipe lock, retrying on contention until
// Config.LockTimeout elapses. A zero LockTimeout (the default) disables
// retry entirely: the first ErrBusy is surfaced immediately.
func (e *Executor) acquireLock(canonicalPath string) (*lockfile.Lock, error) {
	deadline := time.Now().Add(e.Config.LockTimeout)
	for {
		lock, err := lockfile.Acquire(canonicalPath)
		if err == nil {
			return lock, nil
		}
		if e.Config.LockTimeout <= 0 || !errors.Is(err, lockfile.ErrBusy) || time.Now().After(deadline) {
			return nil, err
		}
		time.Sleep(lockRetryInterval)
	}
}

func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", path, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return abs, nil
		}
		return "", fmt.Errorf("resolving %s: %w", path, err)
	}
	return resolved, nil
}

// Install runs the full install lifecycle for the recipe at recipePath
// (spec §4.9 steps 1-9). asDep marks the package as pulled in solely to
// satisfy another recipe's dependency rather than as an explicit target;
// it is persisted as installed_as_dep and consulted by
// internal/graph.FindOrphans.
func (e *Executor) Install(recipePath string, asDep bool) error {
	canonicalPath, err := canonicalize(recipePath)
	if err != nil {
		return err
	}

	lock, err := e.acquireLock(canonicalPath)
	if err != nil {
		return fmt.Errorf("acquiring lock for %s: %w (a stale lock file may need manual removal)", canonicalPath, err)
	}
	defer lock.Close()

	stageDir, err := stage.New(e.Config.BuildDir)
	if err != nil {
		return err
	}
	defer stage.Cleanup(stageDir)

	ctx := &execctx.Context{
		Prefix:     stageDir,
		BuildDir:   e.Config.BuildDir,
		CurrentDir: filepath.Dir(canonicalPath),
	}

	builtins := helpers.Register(e.Logger)
	predeclared := script.Predeclared(stageDir, e.Config.BuildDir, builtins)

	s, err := script.Compile(canonicalPath, predeclared)
	if err != nil {
		return err
	}

	guard, err := execctx.Attach(s.Thread, ctx)
	if err != nil {
		return err
	}
	defer guard.Close()

	r, err := recipe.Validate(canonicalPath, s.DefinedFunctions())
	if err != nil {
		return err
	}

	if r.Installed && s.HasFunction(recipe.FuncIsInstalled) {
		result, err := s.Call(recipe.FuncIsInstalled)
		if err != nil {
			return &PhaseError{Phase: recipe.FuncIsInstalled, Err: err}
		}
		if result.Truth() == starlark.True {
			return ErrAlreadyInstalled
		}
	}

	if _, err := s.Call(recipe.FuncAcquire); err != nil {
		return &PhaseError{Phase: recipe.FuncAcquire, Err: err}
	}
	if _, defined, err := s.CallIfDefined(recipe.FuncBuild); defined && err != nil {
		return &PhaseError{Phase: recipe.FuncBuild, Err: err}
	}
	if _, defined, err := s.CallIfDefined(recipe.FuncPreInstall); defined && err != nil {
		return &PhaseError{Phase: recipe.FuncPreInstall, Err: err}
	}
	if _, err := s.Call(recipe.FuncInstall); err != nil {
		return &PhaseError{Phase: recipe.FuncInstall, Err: err}
	}
	if _, defined, err := s.CallIfDefined(recipe.FuncPostInstall); defined && err != nil {
		return &PhaseError{Phase: recipe.FuncPostInstall, Err: err}
	}

	committed, err := stage.Commit(stageDir, e.Config.Prefix)
	if err != nil {
		return &CommitError{Err: err}
	}

	// The per-helper accumulator (install_bin/ln/write_file/extract/...)
	// tracked the same files as they were staged; drained here purely to
	// reset it now that the commit walk above is the authoritative record.
	e.Logger.Debug("install phases tracked files", "count", len(ctx.Drain()))

	if err := recipe.Persist(canonicalPath, true, r.Version, time.Now().Unix(), committed, asDep); err != nil {
		return err
	}

	if err := installdb.Add(e.Config.InstallDB, r.Name); err != nil {
		return err
	}

	return nil
}

// Remove uninstalls the recipe at recipePath (spec §4.9 "remove"). The
// recipe must currently be installed. A failure deleting any recorded
// file leaves installed_files, installed_version, and installed_at
// untouched so a retry can resume.
func (e *Executor) Remove(recipePath string) error {
	canonicalPath, err := canonicalize(recipePath)
	if err != nil {
		return err
	}

	lock, err := e.acquireLock(canonicalPath)
	if err != nil {
		return fmt.Errorf("acquiring lock for %s: %w", canonicalPath, err)
	}
	defer lock.Close()

	r, err := recipe.Load(canonicalPath)
	if err != nil {
		return err
	}
	if !r.Installed {
		return ErrNotInstalled
	}

	ctx := &execctx.Context{
		Prefix:     e.Config.Prefix,
		BuildDir:   e.Config.BuildDir,
		CurrentDir: filepath.Dir(canonicalPath),
	}

	builtins := helpers.Register(e.Logger)
	predeclared := script.Predeclared(e.Config.Prefix, e.Config.BuildDir, builtins)

	s, err := script.Compile(canonicalPath, predeclared)
	if err != nil {
		return err
	}

	guard, err := execctx.Attach(s.Thread, ctx)
	if err != nil {
		return err
	}
	defer guard.Close()

	if _, defined, err := s.CallIfDefined(recipe.FuncPreRemove); defined && err != nil {
		return &PhaseError{Phase: recipe.FuncPreRemove, Err: err}
	}
	if _, defined, err := s.CallIfDefined(recipe.FuncRemove); defined && err != nil {
		return &PhaseError{Phase: recipe.FuncRemove, Err: err}
	}

	for _, f := range r.InstalledFiles {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			return &RemoveError{Err: fmt.Errorf("deleting %s: %w", f, err)}
		}
		removeEmptyParents(filepath.Dir(f), e.Config.Prefix)
	}

	if err := recipe.ClearInstalledState(canonicalPath); err != nil {
		return err
	}
	if err := installdb.Remove(e.Config.InstallDB, r.Name); err != nil {
		return err
	}

	if _, defined, err := s.CallIfDefined(recipe.FuncPostRemove); defined && err != nil {
		return &PhaseError{Phase: recipe.FuncPostRemove, Err: err}
	}

	return nil
}

// removeEmptyParents removes dir and its ancestors, stopping at the first
// non-empty directory or at prefix itself (exclusive). Errors are
// intentionally ignored: a non-empty or already-removed directory is not
// a failure, just the end of the climb.
func removeEmptyParents(dir, prefix string) {
	cleanPrefix := filepath.Clean(prefix)
	for {
		dir = filepath.Clean(dir)
		if dir == cleanPrefix || dir == "." || dir == string(filepath.Separator) {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

// Update calls the recipe's check_update() if defined and, when it
// returns a version string different from the recipe's current version,
// writes that version back (spec §4.9 "update"). It reports the resolved
// version and whether it changed.
func (e *Executor) Update(recipePath string) (version string, changed bool, err error) {
	canonicalPath, err := canonicalize(recipePath)
	if err != nil {
		return "", false, err
	}

	r, err := recipe.Load(canonicalPath)
	if err != nil {
		return "", false, err
	}

	builtins := helpers.Register(e.Logger)
	predeclared := script.Predeclared(e.Config.Prefix, e.Config.BuildDir, builtins)

	s, err := script.Compile(canonicalPath, predeclared)
	if err != nil {
		return "", false, err
	}

	if !s.HasFunction(recipe.FuncCheckUpdate) {
		return r.Version, false, nil
	}

	ctx := &execctx.Context{Prefix: e.Config.Prefix, BuildDir: e.Config.BuildDir, CurrentDir: filepath.Dir(canonicalPath)}
	guard, err := execctx.Attach(s.Thread, ctx)
	if err != nil {
		return "", false, err
	}
	defer guard.Close()

	result, err := s.Call(recipe.FuncCheckUpdate)
	if err != nil {
		return "", false, &PhaseError{Phase: recipe.FuncCheckUpdate, Err: err}
	}

	newVersion, ok := starlark.AsString(result)
	if !ok {
		return "", false, fmt.Errorf("check_update() must return a string")
	}

	if newVersion == r.Version {
		return r.Version, false, nil
	}

	if err := recipe.SetVar(canonicalPath, "version", recipe.StringValue(newVersion)); err != nil {
		return "", false, err
	}
	return newVersion, true, nil
}

// Upgrade compares the recipe's installed version against its declared
// version using semver and, if the declared version is newer, removes
// then reinstalls the package (spec §4.9 "upgrade"). asDep is forwarded
// to the reinstall, preserving the package's dependency-install status.
func (e *Executor) Upgrade(recipePath string, asDep bool) error {
	canonicalPath, err := canonicalize(recipePath)
	if err != nil {
		return err
	}

	r, err := recipe.Load(canonicalPath)
	if err != nil {
		return err
	}
	if !r.Installed || r.InstalledVersion == nil {
		return ErrNotInstalled
	}

	installed, err := semver.NewVersion(*r.InstalledVersion)
	if err != nil {
		return fmt.Errorf("parsing installed version %q: %w", *r.InstalledVersion, err)
	}
	declared, err := semver.NewVersion(r.Version)
	if err != nil {
		return fmt.Errorf("parsing recipe version %q: %w", r.Version, err)
	}

	if !declared.GreaterThan(installed) {
		return nil
	}

	if err := e.Remove(canonicalPath); err != nil {
		return err
	}
	return e.Install(canonicalPath, asDep)
}

// Resolve calls the recipe's resolve() function, canonicalizes the path
// it returns (interpreting a relative result as relative to build_dir and
// rejecting traversal outside it), confirms the path exists, and returns
// it (spec §4.9 "resolve").
func (e *Executor) Resolve(recipePath string) (string, error) {
	canonicalPath, err := canonicalize(recipePath)
	if err != nil {
		return "", err
	}

	builtins := helpers.Register(e.Logger)
	predeclared := script.Predeclared(e.Config.Prefix, e.Config.BuildDir, builtins)

	s, err := script.Compile(canonicalPath, predeclared)
	if err != nil {
		return "", err
	}

	ctx := &execctx.Context{Prefix: e.Config.Prefix, BuildDir: e.Config.BuildDir, CurrentDir: filepath.Dir(canonicalPath)}
	guard, err := execctx.Attach(s.Thread, ctx)
	if err != nil {
		return "", err
	}
	defer guard.Close()

	result, err := s.Call(recipe.FuncResolve)
	if err != nil {
		return "", &PhaseError{Phase: recipe.FuncResolve, Err: err}
	}

	raw, ok := starlark.AsString(result)
	if !ok {
		return "", fmt.Errorf("resolve() must return a string")
	}

	var resolved string
	if filepath.IsAbs(raw) {
		resolved = filepath.Clean(raw)
	} else {
		candidate := filepath.Join(e.Config.BuildDir, raw)
		validated, err := pathsafe.ValidateWithinPrefix(candidate, e.Config.BuildDir)
		if err != nil {
			return "", err
		}
		resolved = validated
	}

	if _, err := os.Stat(resolved); err != nil {
		return "", fmt.Errorf("resolve() returned a path that does not exist: %s: %w", resolved, err)
	}

	return resolved, nil
}
