package components

import (
	"context"
	"fmt"

	"github.com/kubernix/kubernix/pkg/assets"
	"github.com/kubernix/kubernix/pkg/kubernixerrors"
	"github.com/kubernix/kubernix/pkg/node"
	"github.com/kubernix/kubernix/pkg/paths"
	"github.com/kubernix/kubernix/pkg/pki"
	"github.com/kubernix/kubernix/pkg/process"
)

// Proxy runs one kube-proxy per worker node.
type Proxy struct{ Node int }

func (p *Proxy) Name() string           { return fmt.Sprintf("proxy-%d", p.Node) }
func (p *Proxy) Dependencies() []string { return []string{fmt.Sprintf("kubelet-%d", p.Node)} }

func (p *Proxy) BuildArgv(bctx *BuildContext) (Argv, error) {
	bin, err := bctx.LookPath("kube-proxy")
	if err != nil {
		return Argv{}, err
	}

	if err := assets.WriteProxyConfig(bctx.Layout, p.Node, bctx.Plan); err != nil {
		return Argv{}, err
	}

	l := bctx.Layout
	args := []string{
		"--config=" + l.ProxyConfig(p.Node),
		"--hostname-override=" + paths.NodeName(p.Node),
		"--kubeconfig=" + l.Kubeconfig(pki.IdentityProxy),
	}

	if bctx.Driver != nil && p.Node > 0 {
		if err := node.EnsureSandbox(bctx.Driver, l, p.Node, bctx.NodeImage, bctx.NodeMemoryBytes); err != nil {
			return Argv{}, err
		}
	}
	bin, args = node.Wrap(bctx.Driver, p.Node, bin, args)

	return Argv{Path: bin, Args: args}, nil
}

// ReadinessProbe waits for the log line kube-proxy prints once its
// iptables/ipvs rules are synced, then confirms the process is still
// running: nothing about that log line is protocol-checkable the way an
// HTTP endpoint or a socket is, so process liveness is the only signal
// left to catch a kube-proxy that logged its startup line and then
// immediately crashed.
func (p *Proxy) ReadinessProbe(bctx *BuildContext, proc *process.Process) ReadinessFunc {
	logReady := waitLogPattern(p.LogPath(bctx.Layout), "Caches are synced")
	return func(ctx context.Context) error {
		if err := logReady(ctx); err != nil {
			return err
		}
		if proc != nil && !proc.Running() {
			return &kubernixerrors.ProcessExited{Component: p.Name(), Code: proc.ExitCode()}
		}
		return nil
	}
}

func (p *Proxy) LogPath(layout *paths.Layout) string { return layout.ProxyLog(p.Node) }

func (p *Proxy) RunDescriptorPath(layout *paths.Layout) string {
	return layout.ProxyRunDescriptor(p.Node)
}
