package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/levitate-pkg/recipe-core/internal/recipe"
)

var infoCmd = &cobra.Command{
	Use:   "info <pkg>",
	Short: "Show metadata and install state for a package",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			printError(err)
			exitWithCode(ExitGeneral)
		}

		path, err := requireRecipeExists(cfg, args[0])
		if err != nil {
			printError(err)
			exitWithCode(ExitRecipeNotFound)
		}

		r, err := recipe.Load(path)
		if err != nil {
			printError(err)
			exitWithCode(ExitGeneral)
		}

		fmt.Printf("name:    %s\n", r.Name)
		fmt.Printf("version: %s\n", r.Version)
		if r.Description != nil {
			fmt.Printf("description: %s\n", *r.Description)
		}
		if r.License != nil {
			fmt.Printf("license: %s\n", *r.License)
		}
		if r.Homepage != nil {
			fmt.Printf("homepage: %s\n", *r.Homepage)
		}
		fmt.Printf("installed: %t\n", r.Installed)
		if r.Installed {
			if r.InstalledVersion != nil {
				fmt.Printf("installed_version: %s\n", *r.InstalledVersion)
			}
			fmt.Printf("installed_as_dep: %t\n", r.InstalledAsDep)
			fmt.Printf("installed_files: %d\n", len(r.InstalledFiles))
		}
		if len(r.Deps) > 0 {
			fmt.Printf("deps: %v\n", r.Deps)
		}
		if len(r.BuildDeps) > 0 {
			fmt.Printf("build_deps: %v\n", r.BuildDeps)
		}
	},
}
