package main

import (
	"os"

	"github.com/mysuperaisaas/releasectl/internal/cli"
)

func main() {
	if err := cli.Root().Execute(); err != nil {
		os.Exit(1)
	}
}
