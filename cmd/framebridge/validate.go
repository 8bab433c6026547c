// SPDX-License-Identifier: EPL-2.0

package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ik5/framebridge/asset"
	"github.com/ik5/framebridge/formats"
	"github.com/ik5/framebridge/internal/config"
	"github.com/ik5/framebridge/node"
)

func validateCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check a configuration and build every node it describes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return err
			}
			if err := buildAll(cfg); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d nodes ok\n", root.configPath, len(cfg.Nodes))
			return err
		},
	}
}

// buildAll constructs each node without starting it, which checks settings
// the schema cannot, such as HRIR paths.
func buildAll(cfg *config.Config) error {
	env := node.Env{
		SampleRate: cfg.Engine.SampleRate,
		BlockSize:  cfg.Engine.BlockSize,
		Logger:     slog.New(slog.DiscardHandler),
		Assets:     asset.NewLoader(formats.NewRegistry()),
	}

	var errs []error
	for _, nc := range cfg.Nodes {
		n, err := node.Default.New(nc, env)
		if err != nil {
			errs = append(errs, fmt.Errorf("node %s: %w", nc.Name, err))
			continue
		}
		_ = n.Close()
	}
	return errors.Join(errs...)
}
