package main

import (
	"os"

	"github.com/callrelay-systems/callrelay/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
