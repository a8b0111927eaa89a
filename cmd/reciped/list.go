package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/levitate-pkg/recipe-core/internal/installdb"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed packages",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			printError(err)
			exitWithCode(ExitGeneral)
		}

		names, err := installdb.Load(cfg.InstallDB)
		if err != nil {
			printError(err)
			exitWithCode(ExitGeneral)
		}

		for _, name := range names {
			fmt.Println(name)
		}
	},
}
