package main

import (
	"fmt"
	"os"

	"convoy/internal/cmd"
	"convoy/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(errors.ExitCode(err))
	}
}
