package main

import (
	"context"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/kubernix/kubernix/pkg/config"
)

// RootCmd assembles the kubernix command tree: bootstrapping is the root
// command's own RunE, with shell and version as subcommands.
func RootCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "kubernix",
		Short:         "Bootstrap a self-contained, single-host Kubernetes development cluster",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := bootstrap(ctx, cmd.Flags()); err != nil {
				return errors.Wrap(err, "bootstrap failed")
			}
			return nil
		},
	}

	config.RegisterFlags(cmd.Flags())

	cmd.AddCommand(ShellCmd(ctx))
	cmd.AddCommand(VersionCmd())

	return cmd
}
