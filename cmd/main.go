package main

import (
	"os"

	"github.com/Dosada05/bracket-automation/cli"
)

// @title Bracket Automation API
// @version 1.0
// @description Advances tournament brackets automatically and repairs results that never propagated.
// @BasePath /api
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
