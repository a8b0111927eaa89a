package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/levitate-pkg/recipe-core/internal/graph"
)

var depsCmd = &cobra.Command{
	Use:   "deps <pkg>",
	Short: "Show the resolved install order for a package",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			printError(err)
			exitWithCode(ExitGeneral)
		}

		if _, err := requireRecipeExists(cfg, args[0]); err != nil {
			printError(err)
			exitWithCode(ExitRecipeNotFound)
		}

		g, err := buildGraph(cfg)
		if err != nil {
			printError(err)
			exitWithCode(ExitGeneral)
		}

		steps, err := graph.ResolveDeps(g, args[0])
		if err != nil {
			printError(err)
			exitWithCode(ExitGeneral)
		}

		for _, s := range steps {
			fmt.Println(s.Name)
		}
	},
}
