package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/levitate-pkg/recipe-core/internal/graph"
	"github.com/levitate-pkg/recipe-core/internal/lifecycle"
	"github.com/levitate-pkg/recipe-core/internal/log"
)

// bootstrapCmd installs one or more targets and everything they transitively
// depend on, skipping anything already installed. It differs from install
// only in that it accepts several starting targets at once, the shape
// needed to stand up a prefix from nothing in a single invocation.
var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap <target>...",
	Short: "Install one or more targets and their full dependency closure",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			printError(err)
			exitWithCode(ExitGeneral)
		}

		for _, target := range args {
			if _, err := requireRecipeExists(cfg, target); err != nil {
				printError(err)
				exitWithCode(ExitRecipeNotFound)
			}
		}

		g, err := buildGraph(cfg)
		if err != nil {
			printError(err)
			exitWithCode(ExitGeneral)
		}

		seen := map[string]bool{}
		var plan []graph.InstallStep
		targetSet := map[string]bool{}
		for _, target := range args {
			targetSet[target] = true
			steps, err := graph.ResolveDeps(g, target)
			if err != nil {
				printError(err)
				exitWithCode(ExitGeneral)
			}
			for _, s := range steps {
				if seen[s.Name] {
					continue
				}
				seen[s.Name] = true
				plan = append(plan, s)
			}
		}

		if dryRunFlag {
			for _, s := range plan {
				fmt.Println(s.Name)
			}
			return
		}

		exec := lifecycle.New(cfg, log.Default())
		for _, s := range plan {
			node := g.Nodes[s.Name]
			if node != nil && node.Installed {
				continue
			}
			if err := exec.Install(s.Path, !targetSet[s.Name]); err != nil {
				printError(fmt.Errorf("installing %s: %w", s.Name, err))
				exitWithCode(ExitInstallFailed)
			}
			fmt.Printf("installed %s\n", s.Name)
		}
	},
}
