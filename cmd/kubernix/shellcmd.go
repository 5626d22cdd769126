package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/kubernix/kubernix/pkg/config"
	"github.com/kubernix/kubernix/pkg/logging"
	"github.com/kubernix/kubernix/pkg/paths"
	"github.com/kubernix/kubernix/pkg/pki"
	"github.com/kubernix/kubernix/pkg/shell"
)

// ShellCmd skips cluster bootstrap entirely and attaches a new shell to an
// already-running run root, reusing whatever admin.kubeconfig and
// kubernix.env it finds there.
func ShellCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Attach a shell to an existing kubernix run root",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := attachShell(ctx, cmd.Flags()); err != nil {
				return errors.Wrap(err, "attach shell failed")
			}
			return nil
		},
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

func attachShell(ctx context.Context, flags *pflag.FlagSet) error {
	cfg, err := config.Resolve(flags)
	if err != nil {
		return err
	}
	if err := logging.Setup("", cfg.LogLevel()); err != nil {
		return err
	}

	layout := paths.New(cfg.RootDir())
	if _, err := os.Stat(layout.Kubeconfig(pki.IdentityAdmin)); err != nil {
		return fmt.Errorf("no admin kubeconfig at %s: is a cluster running at %s?", layout.Kubeconfig(pki.IdentityAdmin), layout.Root())
	}

	if _, err := os.Stat(layout.EnvFile()); err != nil {
		if err := shell.WriteEnvFile(layout, shell.Env{
			Kubeconfig:               layout.Kubeconfig(pki.IdentityAdmin),
			Path:                     os.Getenv("PATH"),
			ContainerRuntimeEndpoint: "unix://" + layout.CRIOSocket(0),
		}); err != nil {
			return err
		}
	}

	return shell.Run(ctx, layout, cfg.Shell(), layout.Root())
}
