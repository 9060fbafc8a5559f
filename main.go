package main

import (
	"os"

	"github.com/prtline/sortation/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
