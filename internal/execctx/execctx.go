// Package execctx implements the scoped execution context every install
// helper reads (spec §4.6, design note "Thread-scoped execution context"):
// the staging/real prefix a recipe is allowed to write into, the build
// directory, the directory recipe-relative globs resolve against, and the
// accumulator of files a recipe has installed so far.
//
// The context is attached to the same *starlark.Thread a recipe's phase
// functions run on via SetLocal/Local — go.starlark.net's own thread-local
// slot — satisfying "thread-scoped" literally rather than via a fabricated
// goroutine-local map.
package execctx

import (
	"fmt"
	"sync"

	"go.starlark.net/starlark"
)

const localKey = "recipe-core.execctx"

// Context is the mutable state one lifecycle invocation threads through
// every helper call. Prefix is the staging directory during install and
// the real installation prefix during remove/resolve (§4.6: a recipe must
// never observe the real prefix during install).
type Context struct {
	Prefix   string
	BuildDir string

	// CurrentDir resolves recipe-relative globs (the recipe file's own
	// directory unless a phase function changes it).
	CurrentDir string

	mu             sync.Mutex
	installedFiles []string
}

// AddInstalledFile appends an absolute path to the installed-files
// accumulator. Helpers call this after every successful write.
func (c *Context) AddInstalledFile(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.installedFiles = append(c.installedFiles, path)
}

// InstalledFiles returns a snapshot of every file recorded so far.
func (c *Context) InstalledFiles() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.installedFiles))
	copy(out, c.installedFiles)
	return out
}

// Drain returns the accumulated installed files and resets the
// accumulator, called once after a successful commit (spec §3 "Execution
// context" lifecycle: "drained after a successful commit").
func (c *Context) Drain() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.installedFiles
	c.installedFiles = nil
	return out
}

// Guard clears the context from its thread on Close, regardless of how the
// lifecycle step exits — the RAII pattern design note §9 calls for. A
// lifecycle invocation should `defer guard.Close()` immediately after
// calling Attach.
type Guard struct {
	thread *starlark.Thread
}

// Attach installs ctx onto thread's local scope, returning a Guard whose
// Close detaches it. Attaching onto a thread that already carries a
// context is refused: nested recipe invocations on one thread are
// disallowed (spec §5).
func Attach(thread *starlark.Thread, ctx *Context) (*Guard, error) {
	if thread.Local(localKey) != nil {
		return nil, fmt.Errorf("execution context already attached to this thread: nested recipe invocations are not allowed")
	}
	thread.SetLocal(localKey, ctx)
	return &Guard{thread: thread}, nil
}

// Close detaches the context from its thread. Safe to call more than once.
func (g *Guard) Close() {
	if g == nil || g.thread == nil {
		return
	}
	g.thread.SetLocal(localKey, nil)
	g.thread = nil
}

// From retrieves the context attached to thread, or an error if a helper
// is called with no active context — spec §4.5: "Helpers require an
// active execution context (rejected otherwise)".
func From(thread *starlark.Thread) (*Context, error) {
	v := thread.Local(localKey)
	if v == nil {
		return nil, fmt.Errorf("no execution context attached to this thread")
	}
	ctx, ok := v.(*Context)
	if !ok {
		return nil, fmt.Errorf("thread local %q held an unexpected type", localKey)
	}
	return ctx, nil
}
