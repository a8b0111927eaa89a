package features

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/levitate-pkg/recipe-core/internal/config"
	"github.com/levitate-pkg/recipe-core/internal/graph"
	"github.com/levitate-pkg/recipe-core/internal/lifecycle"
	"github.com/levitate-pkg/recipe-core/internal/log"
	"github.com/levitate-pkg/recipe-core/internal/recipe"
	"github.com/levitate-pkg/recipe-core/internal/testutil"
)

type scenarioState struct {
	recipeDir string
	prefixDir string
	buildDir  string
	cfg       *config.Config
	exec      *lifecycle.Executor

	graph      *graph.Graph
	resolveErr error
	order      []graph.InstallStep

	installErr error
}

func newScenarioState(ctx context.Context) *scenarioState {
	s := &scenarioState{}
	return s
}

func aRecipeDirectory(ctx context.Context) (context.Context, error) {
	s := getState(ctx)
	dir, err := os.MkdirTemp("", "features-recipes-")
	if err != nil {
		return ctx, err
	}
	s.recipeDir = dir
	s.buildDir, err = os.MkdirTemp("", "features-build-")
	if err != nil {
		return ctx, err
	}
	return ctx, nil
}

func anInstallPrefix(ctx context.Context) (context.Context, error) {
	s := getState(ctx)
	dir, err := os.MkdirTemp("", "features-prefix-")
	if err != nil {
		return ctx, err
	}
	s.prefixDir = dir
	s.cfg = &config.Config{
		Prefix:    dir,
		BuildDir:  s.buildDir,
		RecipeDir: s.recipeDir,
		InstallDB: filepath.Join(dir, "installed"),
	}
	s.exec = lifecycle.New(s.cfg, log.NewNoop())
	return ctx, nil
}

func writeRecipe(s *scenarioState, name, content string) error {
	_, err := testutil.WriteRecipe(s.recipeDir, name, content)
	return err
}

func aRecipeWithVersion(ctx context.Context, name, version string) (context.Context, error) {
	s := getState(ctx)
	content := fmt.Sprintf(`
name = %q
version = %q
installed = False
deps = %s

def acquire():
    pass

def install():
    pass
`, name, version, testutil.StarlarkStringList(nil))
	return ctx, writeRecipe(s, name, content)
}

func aRecipeDependingOnOne(ctx context.Context, name, version, dep string) (context.Context, error) {
	s := getState(ctx)
	content := fmt.Sprintf(`
name = %q
version = %q
installed = False
deps = %s

def acquire():
    pass

def install():
    pass
`, name, version, testutil.StarlarkStringList([]string{dep}))
	return ctx, writeRecipe(s, name, content)
}

func aRecipeDependingOnTwo(ctx context.Context, name, version, depA, depB string) (context.Context, error) {
	s := getState(ctx)
	content := fmt.Sprintf(`
name = %q
version = %q
installed = False
deps = %s

def acquire():
    pass

def install():
    pass
`, name, version, testutil.StarlarkStringList([]string{depA, depB}))
	return ctx, writeRecipe(s, name, content)
}

func aRecipeThatWrites(ctx context.Context, name, version, relPath string) (context.Context, error) {
	s := getState(ctx)
	content := fmt.Sprintf(`
name = %q
version = %q
installed = False

def acquire():
    pass

def install():
    write_file(%q, "contents")
`, name, version, relPath)
	return ctx, writeRecipe(s, name, content)
}

func aRecipeThatFailsInPostInstall(ctx context.Context, name, version, relPath string) (context.Context, error) {
	s := getState(ctx)
	content := fmt.Sprintf(`
name = %q
version = %q
installed = False

def acquire():
    pass

def install():
    write_file(%q, "contents")

def post_install():
    fail("boom")
`, name, version, relPath)
	return ctx, writeRecipe(s, name, content)
}

func aRecipeThatInstallsTo(ctx context.Context, name, version, destDir string) (context.Context, error) {
	s := getState(ctx)
	if err := os.WriteFile(filepath.Join(s.recipeDir, "payload"), []byte("contents"), 0o644); err != nil {
		return ctx, err
	}
	content := fmt.Sprintf(`
name = %q
version = %q
installed = False

def acquire():
    pass

def install():
    install_to_dir("payload", %q)
`, name, version, destDir)
	return ctx, writeRecipe(s, name, content)
}

func theInstallErrorMentions(ctx context.Context, substr string) error {
	s := getState(ctx)
	if s.installErr == nil {
		return fmt.Errorf("expected install to fail mentioning %q, but it succeeded", substr)
	}
	if !strings.Contains(s.installErr.Error(), substr) {
		return fmt.Errorf("error %q does not mention %q", s.installErr.Error(), substr)
	}
	return nil
}

func (s *scenarioState) recipePath(name string) string {
	return filepath.Join(s.recipeDir, name+config.RecipeExtension)
}

func (s *scenarioState) indexOf(name string) int {
	for i, step := range s.order {
		if step.Name == name {
			return i
		}
	}
	return -1
}

func iResolveInstallOrderFor(ctx context.Context, target string) (context.Context, error) {
	s := getState(ctx)
	g, err := graph.BuildGraph(s.recipeDir, log.NewNoop())
	if err != nil {
		return ctx, err
	}
	s.graph = g

	steps, err := graph.ResolveDeps(g, target)
	if err != nil {
		s.resolveErr = err
		return ctx, nil
	}
	s.order = steps
	return ctx, nil
}

func isInstalledBefore(ctx context.Context, first, second string) error {
	s := getState(ctx)
	if s.resolveErr != nil {
		return fmt.Errorf("resolution failed, cannot check order: %w", s.resolveErr)
	}
	fi, si := s.indexOf(first), s.indexOf(second)
	if fi == -1 || si == -1 {
		return fmt.Errorf("%q or %q missing from resolved order %v", first, second, s.order)
	}
	if fi >= si {
		return fmt.Errorf("expected %q before %q, got order %v", first, second, s.order)
	}
	return nil
}

func resolutionFailsMentioning(ctx context.Context, substr string) error {
	s := getState(ctx)
	if s.resolveErr == nil {
		return fmt.Errorf("expected resolution to fail mentioning %q, but it succeeded", substr)
	}
	if !strings.Contains(s.resolveErr.Error(), substr) {
		return fmt.Errorf("error %q does not mention %q", s.resolveErr.Error(), substr)
	}
	return nil
}

func iInstall(ctx context.Context, name string) (context.Context, error) {
	s := getState(ctx)
	s.installErr = s.exec.Install(s.recipePath(name), false)
	return ctx, nil
}

func theInstallFailsWithPhaseErrorIn(ctx context.Context, phase string) error {
	s := getState(ctx)
	if s.installErr == nil {
		return fmt.Errorf("expected install to fail in phase %q, but it succeeded", phase)
	}
	var phaseErr *lifecycle.PhaseError
	if !errors.As(s.installErr, &phaseErr) {
		return fmt.Errorf("expected a phase error, got %v", s.installErr)
	}
	if phaseErr.Phase != phase {
		return fmt.Errorf("expected phase %q, got %q", phase, phaseErr.Phase)
	}
	return nil
}

func theFileDoesNotExistInThePrefix(ctx context.Context, relPath string) error {
	s := getState(ctx)
	_, err := os.Stat(filepath.Join(s.prefixDir, relPath))
	if err == nil {
		return fmt.Errorf("expected %s to be absent from the prefix", relPath)
	}
	if !os.IsNotExist(err) {
		return err
	}
	return nil
}

func isNotRecordedAsInstalled(ctx context.Context, name string) error {
	s := getState(ctx)
	r, err := recipe.Load(s.recipePath(name))
	if err != nil {
		return err
	}
	if r.Installed {
		return fmt.Errorf("expected %q not to be recorded as installed", name)
	}
	return nil
}

func isRecordedAsInstalledAtVersion(ctx context.Context, name, version string) error {
	s := getState(ctx)
	r, err := recipe.Load(s.recipePath(name))
	if err != nil {
		return err
	}
	if !r.Installed {
		return fmt.Errorf("expected %q to be recorded as installed", name)
	}
	if r.InstalledVersion == nil || *r.InstalledVersion != version {
		return fmt.Errorf("expected installed_version %q, got %v", version, r.InstalledVersion)
	}
	return nil
}
