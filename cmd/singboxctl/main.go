package main

import (
	"fmt"
	"os"

	"github.com/singbox-orbit/node-agent/cmd/singboxctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cmd.ExitCodeFor(err))
	}
}
