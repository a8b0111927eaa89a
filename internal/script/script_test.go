package script

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
)

func writeScript(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "jq.recipe")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCompile_ExposesConstants(t *testing.T) {
	path := writeScript(t, "name = \"jq\"\nversion = \"1.7.1\"\ninstalled = False\n\ndef acquire():\n    return PREFIX\n\ndef install():\n    return 0\n")

	s, err := Compile(path, Predeclared("/stage/xyz", "/tmp/build", nil))
	require.NoError(t, err)

	v, ok := s.Globals["name"]
	require.True(t, ok)
	require.Equal(t, `"jq"`, v.String())
}

func TestDefinedFunctions(t *testing.T) {
	path := writeScript(t, "name = \"jq\"\nversion = \"1.7.1\"\ninstalled = False\n\ndef acquire():\n    pass\n\ndef install():\n    pass\n\ndef build():\n    pass\n")

	s, err := Compile(path, Predeclared("/stage", "/build", nil))
	require.NoError(t, err)

	funcs := s.DefinedFunctions()
	require.True(t, funcs["acquire"])
	require.True(t, funcs["install"])
	require.True(t, funcs["build"])
	require.False(t, funcs["remove"])
}

func TestCall_InvokesFunctionWithContext(t *testing.T) {
	path := writeScript(t, "name = \"jq\"\nversion = \"1.7.1\"\ninstalled = False\n\ndef acquire():\n    return PREFIX + \"/ok\"\n\ndef install():\n    pass\n")

	s, err := Compile(path, Predeclared("/stage/abc", "/build", nil))
	require.NoError(t, err)

	result, err := s.Call("acquire")
	require.NoError(t, err)
	require.Equal(t, `"/stage/abc/ok"`, result.String())
}

func TestCallIfDefined_MissingFunction(t *testing.T) {
	path := writeScript(t, "name = \"jq\"\nversion = \"1.7.1\"\ninstalled = False\n\ndef acquire():\n    pass\n\ndef install():\n    pass\n")

	s, err := Compile(path, Predeclared("/stage", "/build", nil))
	require.NoError(t, err)

	_, defined, err := s.CallIfDefined("post_install")
	require.NoError(t, err)
	require.False(t, defined)
}

func TestCompile_SurfacesRuntimeError(t *testing.T) {
	path := writeScript(t, "name = \"jq\"\nversion = \"1.7.1\"\ninstalled = False\n\nbad = undefined_name\n")

	_, err := Compile(path, Predeclared("/stage", "/build", nil))
	require.Error(t, err)
}

func TestPredeclared_MergesCustomBuiltins(t *testing.T) {
	builtins := starlark.StringDict{
		"custom_helper": starlark.NewBuiltin("custom_helper", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			return starlark.String("called"), nil
		}),
	}
	path := writeScript(t, "name = \"jq\"\nversion = \"1.7.1\"\ninstalled = False\n\ndef acquire():\n    return custom_helper()\n\ndef install():\n    pass\n")

	s, err := Compile(path, Predeclared("/stage", "/build", builtins))
	require.NoError(t, err)

	result, err := s.Call("acquire")
	require.NoError(t, err)
	require.Equal(t, `"called"`, result.String())
}
