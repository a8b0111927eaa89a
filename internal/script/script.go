// Package script embeds the recipe scripting engine: it compiles a recipe
// file to a running Starlark program, introspects which phase functions it
// defines, and calls them with the execution-context thread attached
// (spec §4.6, design note "Embedded scripting engine").
//
// The core never shells out to an interpreter and never loads a plugin;
// go.starlark.net runs fully in-process and synchronously, exactly as the
// design note requires.
package script

import (
	"fmt"
	"runtime"

	"go.starlark.net/starlark"
)

// Script is one compiled recipe: its top-level globals (state variables
// and function bindings) plus the thread they ran on, which callers reuse
// for every subsequent phase-function call so the execution context
// attached to it (internal/execctx) stays visible to builtins.
type Script struct {
	Path    string
	Thread  *starlark.Thread
	Globals starlark.StringDict
}

// Predeclared builds the fixed set of constants and builtins every recipe
// sees in its global scope: PREFIX, BUILD_DIR, ARCH, NPROC per spec §4.6,
// plus whatever install-helper builtins the caller supplies (internal/helpers
// registers these; script itself knows nothing about helper semantics).
func Predeclared(prefix, buildDir string, builtins starlark.StringDict) starlark.StringDict {
	predeclared := starlark.StringDict{
		"PREFIX":    starlark.String(prefix),
		"BUILD_DIR": starlark.String(buildDir),
		"ARCH":      starlark.String(runtime.GOARCH),
		"NPROC":     starlark.MakeInt(runtime.NumCPU()),
	}
	for name, v := range builtins {
		predeclared[name] = v
	}
	return predeclared
}

// Compile reads the recipe at path and runs its top level against a fresh
// thread and global dictionary seeded with predeclared, without calling
// any phase function yet. A compile/runtime error here is the "Recipe
// parse/compile" error kind (spec §7): surfaced with file and position,
// exactly as go.starlark.net formats it, with no local recovery.
func Compile(path string, predeclared starlark.StringDict) (*Script, error) {
	thread := &starlark.Thread{Name: path}

	globals, err := starlark.ExecFile(thread, path, nil, predeclared)
	if err != nil {
		return nil, fmt.Errorf("compiling recipe %s: %w", path, err)
	}

	return &Script{Path: path, Thread: thread, Globals: globals}, nil
}

// DefinedFunctions returns the set of global names bound to a callable
// value — the phase functions and hooks a recipe has actually defined,
// used by internal/recipe's validator and internal/lifecycle's phase
// runner to decide which optional functions to call.
func (s *Script) DefinedFunctions() map[string]bool {
	defined := make(map[string]bool)
	for name, v := range s.Globals {
		if _, ok := v.(starlark.Callable); ok {
			defined[name] = true
		}
	}
	return defined
}

// HasFunction reports whether name is bound to a callable global.
func (s *Script) HasFunction(name string) bool {
	v, ok := s.Globals[name]
	if !ok {
		return false
	}
	_, callable := v.(starlark.Callable)
	return callable
}

// Call invokes the named global function with args, returning its result
// as a Starlark value. A runtime error inside the call (a phase function
// raising, a builtin rejecting a bad argument) surfaces as a Go error
// wrapping the Starlark EvalError so the caller can recover its backtrace.
func (s *Script) Call(name string, args ...starlark.Value) (starlark.Value, error) {
	v, ok := s.Globals[name]
	if !ok {
		return nil, fmt.Errorf("function %q is not defined", name)
	}
	callable, ok := v.(starlark.Callable)
	if !ok {
		return nil, fmt.Errorf("%q is not callable", name)
	}

	result, err := starlark.Call(s.Thread, callable, starlark.Tuple(args), nil)
	if err != nil {
		return nil, fmt.Errorf("calling %s(): %w", name, err)
	}
	return result, nil
}

// CallIfDefined calls name if it is bound, returning (nil, false, nil) if
// it is not — the shape every optional phase function and hook call uses.
func (s *Script) CallIfDefined(name string, args ...starlark.Value) (starlark.Value, bool, error) {
	if !s.HasFunction(name) {
		return nil, false, nil
	}
	result, err := s.Call(name, args...)
	if err != nil {
		return nil, true, err
	}
	return result, true, nil
}
