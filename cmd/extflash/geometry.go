package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gentam/n0110/dfu"
	"github.com/gentam/n0110/flash"
)

func newGeometryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "geometry",
		Short: "Print the sector layout advertised over DFU",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			g := flash.N0110
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, g.Descriptor(dfu.MemoryName))

			tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
			fmt.Fprintln(tw, "START\tEND\tSECTORS\tSIZE")
			addr := g.Base
			for _, c := range g.Classes {
				end := addr + uint32(c.Count)*c.Size
				fmt.Fprintf(tw, "%#08x\t%#08x\t%d\t%dK\n", addr, end-1, c.Count, c.Size>>10)
				addr = end
			}
			return tw.Flush()
		},
	}
}
