package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/levitate-pkg/recipe-core/internal/config"
	"github.com/levitate-pkg/recipe-core/internal/graph"
	"github.com/levitate-pkg/recipe-core/internal/log"
)

func printError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}

// recipePath resolves a package name to its recipe file under cfg.RecipeDir.
func recipePath(cfg *config.Config, name string) string {
	return filepath.Join(cfg.RecipeDir, name+config.RecipeExtension)
}

func requireRecipeExists(cfg *config.Config, name string) (string, error) {
	path := recipePath(cfg, name)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("no recipe named %q in %s", name, cfg.RecipeDir)
		}
		return "", err
	}
	return path, nil
}

func buildGraph(cfg *config.Config) (*graph.Graph, error) {
	return graph.BuildGraph(cfg.RecipeDir, log.Default())
}
