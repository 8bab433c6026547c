// SPDX-License-Identifier: EPL-2.0

package main

import (
	"github.com/spf13/cobra"
)

const defaultConfigPath = "framebridge.yaml"

type rootOptions struct {
	configPath string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "framebridge",
		Short:         "Render audio through fixed-frame codecs",
		SilenceUsage:  true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultConfigPath, "Path to the YAML configuration")

	cmd.AddCommand(
		renderCommand(opts),
		nodesCommand(),
		validateCommand(opts),
	)
	return cmd
}
