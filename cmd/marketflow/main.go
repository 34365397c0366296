package main

import (
	"os"

	"github.com/marketflow/marketflow/cmd/marketflow/root"
)

func main() {
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
