package main

import (
	"os"

	"github.com/chypac/olimpiafa/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
