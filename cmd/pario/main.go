package main

import (
	"fmt"
	"os"

	"github.com/momentics/pario/internal/clicmd"
)

func main() {
	if err := clicmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
