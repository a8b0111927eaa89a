package recipe

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidate_Passes(t *testing.T) {
	path := writeRecipe(t, "name = \"jq\";\nversion = \"1.7.1\";\ninstalled = False;\n")

	_, err := Validate(path, map[string]bool{"acquire": true, "install": true})
	require.NoError(t, err)
}

func TestValidate_AggregatesMissingRequirements(t *testing.T) {
	path := writeRecipe(t, "installed = False;\n")

	_, err := Validate(path, map[string]bool{})
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.GreaterOrEqual(t, len(verr.Errors), 4, "name, version, acquire, install should all be reported together")
}

func TestValidate_RequiresInstalledVersionWhenInstalled(t *testing.T) {
	path := writeRecipe(t, "name = \"jq\";\nversion = \"1.7.1\";\ninstalled = True;\n")

	_, err := Validate(path, map[string]bool{"acquire": true, "install": true})
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	found := false
	for _, e := range verr.Errors {
		var fe FieldError
		if errors.As(e, &fe) && fe.Field == "installed_version" {
			found = true
		}
	}
	require.True(t, found)
}

func TestValidate_MissingRequiredFunctions(t *testing.T) {
	path := writeRecipe(t, "name = \"jq\";\nversion = \"1.7.1\";\ninstalled = False;\n")

	_, err := Validate(path, map[string]bool{"acquire": true})
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	var fe FieldError
	matched := false
	for _, e := range verr.Errors {
		if errors.As(e, &fe) && fe.Field == "install" {
			matched = true
		}
	}
	require.True(t, matched)
}
