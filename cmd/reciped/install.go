package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/levitate-pkg/recipe-core/internal/graph"
	"github.com/levitate-pkg/recipe-core/internal/lifecycle"
	"github.com/levitate-pkg/recipe-core/internal/log"
)

var installCmd = &cobra.Command{
	Use:   "install <pkg>",
	Short: "Install a package and any recipes it depends on",
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

		if dryRunFlag {
			for _, s := range steps {
				fmt.Println(s.Name)
			}
			return
		}

		exec := lifecycle.New(cfg, log.Default())
		for i, s := range steps {
			asDep := i != len(steps)-1
			node := g.Nodes[s.Name]
			if node != nil && node.Installed {
				continue
			}
			if err := exec.Install(s.Path, asDep); err != nil {
				printError(fmt.Errorf("installing %s: %w", s.Name, err))
				exitWithCode(ExitInstallFailed)
			}
			fmt.Printf("installed %s\n", s.Name)
		}
	},
}
