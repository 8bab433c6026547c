// SPDX-License-Identifier: EPL-2.0

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ik5/framebridge/node"
)

func nodesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "nodes",
		Short: "List the node kinds with their frame sizes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KIND\tFRAME\tCHANNELS")
			for _, info := range node.Default.Kinds() {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", info.Kind, info.FrameSize, info.Channels)
			}
			return tw.Flush()
		},
	}
}
