package execctx

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
)

func TestAttachAndFrom(t *testing.T) {
	thread := &starlark.Thread{}
	ctx := &Context{Prefix: "/stage/1", BuildDir: "/build"}

	guard, err := Attach(thread, ctx)
	require.NoError(t, err)
	defer guard.Close()

	got, err := From(thread)
	require.NoError(t, err)
	require.Equal(t, "/stage/1", got.Prefix)
}

func TestFrom_NoContextAttached(t *testing.T) {
	thread := &starlark.Thread{}
	_, err := From(thread)
	require.Error(t, err)
}

func TestAttach_RejectsNesting(t *testing.T) {
	thread := &starlark.Thread{}
	ctx1 := &Context{Prefix: "/stage/1"}
	ctx2 := &Context{Prefix: "/stage/2"}

	guard, err := Attach(thread, ctx1)
	require.NoError(t, err)
	defer guard.Close()

	_, err = Attach(thread, ctx2)
	require.Error(t, err)
}

func TestGuard_CloseDetachesContext(t *testing.T) {
	thread := &starlark.Thread{}
	ctx := &Context{Prefix: "/stage/1"}

	guard, err := Attach(thread, ctx)
	require.NoError(t, err)

	guard.Close()
	_, err = From(thread)
	require.Error(t, err, "context must be gone after the guard closes")
}

func TestGuard_CloseIsIdempotent(t *testing.T) {
	thread := &starlark.Thread{}
	ctx := &Context{Prefix: "/stage/1"}

	guard, err := Attach(thread, ctx)
	require.NoError(t, err)

	guard.Close()
	require.NotPanics(t, func() { guard.Close() })
}

func TestContext_InstalledFilesAccumulateAndDrain(t *testing.T) {
	ctx := &Context{Prefix: "/stage/1"}
	ctx.AddInstalledFile("/usr/local/bin/jq")
	ctx.AddInstalledFile("/usr/local/share/man/man1/jq.1")

	require.Equal(t, 2, len(ctx.InstalledFiles()))

	drained := ctx.Drain()
	require.Equal(t, 2, len(drained))
	require.Empty(t, ctx.InstalledFiles())
}
