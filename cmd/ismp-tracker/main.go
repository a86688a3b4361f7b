package main

import (
	"os"

	"github.com/celestiaorg/ismp/cmd/ismp-tracker/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
