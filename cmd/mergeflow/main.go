package main

import (
	"os"

	"mergeflow/cmd/mergeflow/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
