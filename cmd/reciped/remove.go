package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/levitate-pkg/recipe-core/internal/graph"
	"github.com/levitate-pkg/recipe-core/internal/lifecycle"
	"github.com/levitate-pkg/recipe-core/internal/log"
)

var removeForce bool

var removeCmd = &cobra.Command{
	Use:   "remove <pkg>",
	Short: "Remove an installed package",
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

		if !removeForce {
			g, err := buildGraph(cfg)
			if err != nil {
				printError(err)
				exitWithCode(ExitGeneral)
			}
			if dependents := installedDependents(g, args[0]); len(dependents) > 0 {
				printError(fmt.Errorf("%s is required by: %v (use --force to remove anyway)", args[0], dependents))
				exitWithCode(ExitGeneral)
			}
		}

		if dryRunFlag {
			fmt.Printf("would remove %s\n", args[0])
			return
		}

		exec := lifecycle.New(cfg, log.Default())
		if err := exec.Remove(path); err != nil {
			printError(err)
			exitWithCode(ExitInstallFailed)
		}
		fmt.Printf("removed %s\n", args[0])
	},
}

func init() {
	removeCmd.Flags().BoolVar(&removeForce, "force", false, "Remove even if other installed packages depend on it")
}

func installedDependents(g *graph.Graph, pkg string) []string {
	var dependents []string
	for _, name := range graph.ReverseDeps(g, pkg) {
		if node := g.Nodes[name]; node != nil && node.Installed {
			dependents = append(dependents, name)
		}
	}
	return dependents
}
