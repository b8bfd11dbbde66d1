package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/GoCodeAlone/stepdiag"
	"github.com/GoCodeAlone/stepdiag/cmd/stepdiag/cmd"
)

func main() {
	rootCmd := cmd.NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, stepdiag.ErrProblemsFound) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
