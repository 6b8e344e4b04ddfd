// Package clicmd implements the example CLI driver surface spec §6
// calls out ("the core has no CLI; it is a library ... example drivers
// in the source accept --wdecomp FILE, --rdecomp FILE, --variable
// NAME"), built with spf13/cobra in the pack's dh-cli style
// (internal/cmd package holding the cobra tree, a thin cmd/<bin>/main.go
// entry point).
package clicmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Execute builds and runs the pario root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd assembles the pario CLI's command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pario",
		Short:         "Example driver for the pario parallel-I/O rearranger library",
		Long:          "pario is an example driver, not the library itself: it demonstrates init-decomp, darray write/read, and decomposition-file round trips over the in-memory back-end.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       fmt.Sprintf("pario %s", Version),
	}
	root.AddCommand(newDarrayRoundtripCmd())
	root.AddCommand(newWriteDecompCmd())
	root.AddCommand(newReadDecompCmd())
	return root
}

// Version is overridable at build time via -ldflags.
var Version = "dev"
