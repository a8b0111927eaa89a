package recipe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeRecipe(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "jq.recipe")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestGetVar_FindsDeclaration(t *testing.T) {
	path := writeRecipe(t, "name = \"jq\";\nversion = \"1.7.1\";\ninstalled = False;\n")

	v, found, err := GetVar(path, "version")
	require.NoError(t, err)
	require.True(t, found)
	s, ok := v.String()
	require.True(t, ok)
	require.Equal(t, "1.7.1", s)
}

func TestGetVar_WordBoundaryAvoidsPrefixCollision(t *testing.T) {
	path := writeRecipe(t, "installed = True;\ninstalled_files = [\"/usr/local/bin/jq\"];\n")

	v, found, err := GetVar(path, "installed")
	require.NoError(t, err)
	require.True(t, found)
	b, ok := v.Bool()
	require.True(t, ok)
	require.True(t, b)
}

func TestGetVar_StripsInlineComments(t *testing.T) {
	path := writeRecipe(t, "version = \"1.0.0\"; // pinned upstream release\n")
	v, found, err := GetVar(path, "version")
	require.NoError(t, err)
	require.True(t, found)
	s, _ := v.String()
	require.Equal(t, "1.0.0", s)
}

func TestGetVar_StripsBlockComments(t *testing.T) {
	path := writeRecipe(t, "version = /* the pinned one */ \"1.0.0\";\n")
	v, found, err := GetVar(path, "version")
	require.NoError(t, err)
	require.True(t, found)
	s, _ := v.String()
	require.Equal(t, "1.0.0", s)
}

func TestGetVar_NotFound(t *testing.T) {
	path := writeRecipe(t, "name = \"jq\";\n")
	_, found, err := GetVar(path, "homepage")
	require.NoError(t, err)
	require.False(t, found)
}

func TestSetVar_ReplacesExistingPreservingIndentation(t *testing.T) {
	path := writeRecipe(t, "name = \"jq\";\n    version = \"1.7.0\";\ninstalled = False;\n")

	require.NoError(t, SetVar(path, "version", StringValue("1.7.1")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "    version = \"1.7.1\";")
}

func TestSetVar_InsertsAfterLastStateVariable(t *testing.T) {
	path := writeRecipe(t, "name = \"jq\";\nversion = \"1.7.1\";\ninstalled = False;\n")

	require.NoError(t, SetVar(path, "installed_version", StringValue("1.7.1")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := string(data)
	require.Contains(t, lines, "installed_version = \"1.7.1\";")
}

func TestSetVars_AppliesAllUpdatesAtomically(t *testing.T) {
	path := writeRecipe(t, "name = \"jq\";\nversion = \"1.7.1\";\ninstalled = False;\n")

	err := Persist(path, true, "1.7.1", 1700000000, []string{"/usr/local/bin/jq"}, true)
	require.NoError(t, err)

	r, err := Load(path)
	require.NoError(t, err)
	require.True(t, r.Installed)
	require.Equal(t, "1.7.1", *r.InstalledVersion)
	require.Equal(t, int64(1700000000), *r.InstalledAt)
	require.Equal(t, []string{"/usr/local/bin/jq"}, r.InstalledFiles)
	require.True(t, r.InstalledAsDep)
}

func TestSetVars_NoPartialFileOnSuccess(t *testing.T) {
	path := writeRecipe(t, "name = \"jq\";\nversion = \"1.7.1\";\ninstalled = False;\n")
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, SetVar(path, "version", StringValue("1.7.2")))

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotEqual(t, string(before), string(after))

	dir := filepath.Dir(path)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no leftover temp files after a successful atomic write")
}

func TestClearInstalledState(t *testing.T) {
	path := writeRecipe(t, "name = \"jq\";\nversion = \"1.7.1\";\ninstalled = True;\ninstalled_version = \"1.7.1\";\ninstalled_at = 1700000000;\ninstalled_files = [\"/usr/local/bin/jq\"];\ninstalled_as_dep = True;\n")

	require.NoError(t, ClearInstalledState(path))

	r, err := Load(path)
	require.NoError(t, err)
	require.False(t, r.Installed)
	require.Nil(t, r.InstalledVersion)
	require.Nil(t, r.InstalledAt)
	require.False(t, r.InstalledAsDep)
}

func TestPersist_InstalledAsDepFalseForExplicitTarget(t *testing.T) {
	path := writeRecipe(t, "name = \"jq\";\nversion = \"1.7.1\";\ninstalled = False;\n")

	require.NoError(t, Persist(path, true, "1.7.1", 1700000000, []string{"/usr/local/bin/jq"}, false))

	r, err := Load(path)
	require.NoError(t, err)
	require.False(t, r.InstalledAsDep)
}
