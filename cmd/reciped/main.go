package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/levitate-pkg/recipe-core/internal/config"
	"github.com/levitate-pkg/recipe-core/internal/log"
)

var (
	recipeDirFlag string
	prefixFlag    string
	verboseFlag   bool
	dryRunFlag    bool
)

var rootCmd = &cobra.Command{
	Use:   "reciped",
	Short: "Front end for the recipe-core source package manager",
	Long: `reciped drives the recipe-core engine: it resolves dependency
graphs, runs recipe lifecycle phases, and reports results. It is a thin
wrapper; all of the actual install/remove/resolve logic lives in the
core packages under internal/.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&recipeDirFlag, "recipe-dir", "", "Directory to scan for recipes (overrides RECIPE_DIR)")
	rootCmd.PersistentFlags().StringVar(&prefixFlag, "prefix", "", "Installation prefix (overrides RECIPE_PREFIX)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Show verbose (debug-level) output")
	rootCmd.PersistentFlags().BoolVar(&dryRunFlag, "dry-run", false, "Resolve and print the plan without installing or removing anything")

	rootCmd.PersistentPreRun = initLogger

	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(depsCmd)
	rootCmd.AddCommand(bootstrapCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		exitWithCode(ExitGeneral)
	}
}

func initLogger(cmd *cobra.Command, args []string) {
	level := slog.LevelWarn
	if verboseFlag {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	log.SetDefault(log.New(handler))
}

// loadConfig resolves the ambient configuration, then applies --recipe-dir
// and --prefix overrides from the command line on top of it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if recipeDirFlag != "" {
		cfg.RecipeDir = recipeDirFlag
	}
	if prefixFlag != "" {
		cfg.Prefix = prefixFlag
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	return cfg, nil
}
