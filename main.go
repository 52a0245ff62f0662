package main

import (
	"os"

	"clipsqueeze/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
