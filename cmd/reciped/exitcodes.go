package main

import "os"

// Exit codes for different failure modes. Scripts built on top of reciped
// can distinguish a usage mistake from an actual install failure.
const (
	ExitSuccess        = 0
	ExitGeneral        = 1
	ExitUsage          = 2
	ExitRecipeNotFound = 3
	ExitInstallFailed  = 4
)

func exitWithCode(code int) {
	os.Exit(code)
}
