package main

import (
	"os"

	"github.com/aksel/sage/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
