package main

import (
	"os"

	"github.com/krshsl/nora/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
