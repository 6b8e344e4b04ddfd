package clicmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/momentics/pario/decompio"
)

func parseIntList(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("%q: %w", p, err)
		}
		out[i] = n
	}
	return out, nil
}

func parseInt64List(s string) ([]int64, error) {
	ints, err := parseIntList(s)
	if err != nil {
		return nil, err
	}
	out := make([]int64, len(ints))
	for i, v := range ints {
		out[i] = int64(v)
	}
	return out, nil
}

func newWriteDecompCmd() *cobra.Command {
	var gdims, compMap string
	var tasks int
	var toml bool

	cmd := &cobra.Command{
		Use:   "write-decomp FILE",
		Short: "Write a decomposition file from an explicit compute map",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dims, err := parseIntList(gdims)
			if err != nil {
				return fmt.Errorf("--gdims: %w", err)
			}
			m, err := parseInt64List(compMap)
			if err != nil {
				return fmt.Errorf("--map: %w", err)
			}
			d := decompio.Decomposition{
				Version: decompio.CurrentVersion,
				Tasks:   tasks,
				NDims:   len(dims),
				DimLens: dims,
				MapLen:  len(m),
				Map:     m,
			}
			if toml {
				return decompio.WriteTOML(args[0], d)
			}
			return decompio.WriteText(args[0], d)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&gdims, "gdims", "", "comma-separated global dimension lengths")
	flags.StringVar(&compMap, "map", "", "comma-separated 1-based compute map (0 marks a hole)")
	flags.IntVar(&tasks, "tasks", 1, "task count to record in the file header")
	flags.BoolVar(&toml, "toml", false, "write the structured TOML variant instead of the text dump")
	cmd.MarkFlagRequired("gdims")
	cmd.MarkFlagRequired("map")
	return cmd
}

func newReadDecompCmd() *cobra.Command {
	var toml bool
	cmd := &cobra.Command{
		Use:   "read-decomp FILE",
		Short: "Print a decomposition file's contents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var d decompio.Decomposition
			var err error
			if toml {
				d, err = decompio.ReadTOML(args[0])
			} else {
				d, err = decompio.ReadText(args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version=%d tasks=%d ndims=%d dimlens=%v maplen=%d map=%v\n",
				d.Version, d.Tasks, d.NDims, d.DimLens, d.MapLen, d.Map)
			return nil
		},
	}
	cmd.Flags().BoolVar(&toml, "toml", false, "read the structured TOML variant instead of the text dump")
	return cmd
}
