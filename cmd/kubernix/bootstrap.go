package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/kubernix/kubernix/pkg/assets"
	"github.com/kubernix/kubernix/pkg/components"
	"github.com/kubernix/kubernix/pkg/config"
	"github.com/kubernix/kubernix/pkg/containerd"
	"github.com/kubernix/kubernix/pkg/kubeconfig"
	"github.com/kubernix/kubernix/pkg/logging"
	"github.com/kubernix/kubernix/pkg/netplan"
	"github.com/kubernix/kubernix/pkg/node"
	"github.com/kubernix/kubernix/pkg/orchestrator"
	"github.com/kubernix/kubernix/pkg/paths"
	"github.com/kubernix/kubernix/pkg/pki"
	"github.com/kubernix/kubernix/pkg/shell"
	"github.com/kubernix/kubernix/pkg/signals"
	"github.com/kubernix/kubernix/pkg/sysprep"
)

// bootstrap resolves configuration, materializes PKI/network/static assets,
// starts every component in dependency order, launches the shell, and
// tears everything down once the shell exits or a start failure occurs.
func bootstrap(ctx context.Context, flags *pflag.FlagSet) error {
	cfg, err := config.Resolve(flags)
	if err != nil {
		return err
	}

	layout := paths.New(cfg.RootDir())
	if err := os.MkdirAll(layout.Root(), 0o755); err != nil {
		return fmt.Errorf("create run root %s: %w", layout.Root(), err)
	}
	if err := logging.Setup(layout.KubernixLog(), cfg.LogLevel()); err != nil {
		return err
	}

	config.WarnIfPersisted(cfg.RootDir())
	if err := config.Persist(cfg); err != nil {
		logrus.Warnf("unable to persist config: %v", err)
	}
	if err := config.WriteEnvFile(cfg, ""); err != nil {
		logrus.Warnf("unable to write kubernix.env: %v", err)
	}

	if err := sysprep.Prepare(cfg); err != nil {
		return err
	}

	for _, dir := range layout.AllComponentDirs(cfg.Nodes()) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create component dir %s: %w", dir, err)
		}
	}

	plan, err := netplan.Compute(cfg.CIDR(), cfg.Nodes())
	if err != nil {
		return err
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "kubernix"
	}

	bundle, err := pki.GenerateOrLoad(layout, plan, hostname, cfg.Nodes())
	if err != nil {
		return err
	}

	apiserverAddr := fmt.Sprintf("%s:6443", plan.APIAdvertiseIP.String())
	if err := kubeconfig.WriteAll(layout, bundle, apiserverAddr, cfg.Nodes()); err != nil {
		return err
	}
	if err := kubeconfig.Write(layout, bundle, pki.IdentityAdmin, "https://"+apiserverAddr); err != nil {
		return err
	}

	if err := writeStaticAssets(layout, plan, cfg.Nodes()); err != nil {
		return err
	}

	var driver containerd.Driver
	if cfg.Nodes() > 1 {
		driver, err = containerd.New(cfg.Runtime())
		if err != nil {
			return err
		}
	}

	bctx := &components.BuildContext{
		Config:          cfg,
		Layout:          layout,
		Plan:            plan,
		Bundle:          bundle,
		Hostname:        hostname,
		LookPath:        exec.LookPath,
		Driver:          driver,
		NodeMemoryBytes: cfg.NodeMemoryBytes(),
	}

	orch := orchestrator.New(components.All(cfg.Nodes()))

	shutdownCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	stopSignals := signals.Install(cancel)
	defer stopSignals()

	if err := orch.Start(shutdownCtx, bctx); err != nil {
		for i := 0; i < cfg.Nodes(); i++ {
			if stopErr := node.Stop(bctx.Driver, i); stopErr != nil {
				logrus.Warn(stopErr)
			}
		}
		for _, e := range sysprep.UnmountAll(layout.Root()) {
			logrus.Warn(e)
		}
		return err
	}
	logrus.Info("cluster is ready")

	go func() {
		if err := <-orch.Exited(); err != nil {
			cancel(err)
		}
	}()

	if err := shell.WriteEnvFile(layout, shell.Env{
		Kubeconfig:               layout.Kubeconfig(pki.IdentityAdmin),
		Path:                     os.Getenv("PATH"),
		ContainerRuntimeEndpoint: "unix://" + layout.CRIOSocket(0),
	}); err != nil {
		return err
	}

	if cfg.NoShell() {
		<-shutdownCtx.Done()
	} else {
		if err := shell.Run(shutdownCtx, layout, cfg.Shell(), layout.Root()); err != nil {
			logrus.Debugf("shell exited: %v", err)
		}
	}

	if errs := orch.Teardown(context.Background()); len(errs) > 0 {
		for _, e := range errs {
			logrus.Warn(e)
		}
	}
	for i := 0; i < cfg.Nodes(); i++ {
		if err := node.Stop(bctx.Driver, i); err != nil {
			logrus.Warn(err)
		}
	}
	if errs := sysprep.UnmountAll(layout.Root()); len(errs) > 0 {
		for _, e := range errs {
			logrus.Warn(e)
		}
	}

	return nil
}

func writeStaticAssets(layout *paths.Layout, plan *netplan.Plan, nodes int) error {
	if err := assets.WriteEncryptionConfig(layout); err != nil {
		return err
	}
	if err := assets.WriteCoreDNSManifest(layout, plan.DNSServiceIP); err != nil {
		return err
	}
	for i := 0; i < nodes; i++ {
		criAssets := assets.CRIOAssets{
			Conmon:       lookPathOr("conmon"),
			Runc:         lookPathOr("runc"),
			CNIPluginDir: cniPluginDir(),
		}
		if err := assets.WriteCRIOConfig(layout, i, nodes, plan, criAssets); err != nil {
			return err
		}
		if err := assets.WriteProxyConfig(layout, i, plan); err != nil {
			return err
		}
		if err := assets.WriteKubeletConfig(layout, i, plan); err != nil {
			return err
		}
	}
	return nil
}

func lookPathOr(name string) string {
	if p, err := exec.LookPath(name); err == nil {
		return p
	}
	return name
}

func cniPluginDir() string {
	if p, err := exec.LookPath("bridge"); err == nil {
		return p[:len(p)-len("/bridge")]
	}
	return "/opt/cni/bin"
}
