package components

import (
	"context"
	"fmt"

	"github.com/kubernix/kubernix/pkg/assets"
	"github.com/kubernix/kubernix/pkg/node"
	"github.com/kubernix/kubernix/pkg/paths"
	"github.com/kubernix/kubernix/pkg/pki"
	"github.com/kubernix/kubernix/pkg/process"
)

// Kubelet runs one kubelet per worker node, talking to that node's own
// CRI-O socket.
type Kubelet struct{ Node int }

func (k *Kubelet) Name() string           { return fmt.Sprintf("kubelet-%d", k.Node) }
func (k *Kubelet) Dependencies() []string { return []string{fmt.Sprintf("crio-%d", k.Node)} }

func (k *Kubelet) BuildArgv(bctx *BuildContext) (Argv, error) {
	bin, err := bctx.LookPath("kubelet")
	if err != nil {
		return Argv{}, err
	}

	if err := assets.WriteKubeletConfig(bctx.Layout, k.Node, bctx.Plan); err != nil {
		return Argv{}, err
	}

	l := bctx.Layout
	identity := pki.KubeletIdentity(k.Node)
	args := []string{
		"--config=" + l.KubeletConfig(k.Node),
		"--container-runtime-endpoint=unix://" + l.CRIOSocket(k.Node),
		"--hostname-override=" + paths.NodeName(k.Node),
		"--kubeconfig=" + l.Kubeconfig(identity),
		"--root-dir=" + l.KubeletRootDir(k.Node),
		fmt.Sprintf("--port=%d", 11250+k.Node),
		fmt.Sprintf("--healthz-port=%d", 12250+k.Node),
		"--v=2",
	}

	if bctx.Driver != nil && k.Node > 0 {
		if err := node.EnsureSandbox(bctx.Driver, l, k.Node, bctx.NodeImage, bctx.NodeMemoryBytes); err != nil {
			return Argv{}, err
		}
	}
	bin, args = node.Wrap(bctx.Driver, k.Node, bin, args)

	return Argv{Path: bin, Args: args}, nil
}

// ReadinessProbe waits for the registration log line, then confirms the
// API server itself reports the node's Ready condition true, the way
// `kubectl get nodes` determines readiness.
func (k *Kubelet) ReadinessProbe(bctx *BuildContext, proc *process.Process) ReadinessFunc {
	logReady := waitLogPattern(k.LogPath(bctx.Layout), "Successfully registered node")
	nodeReady := nodeReadyReady(bctx, k.Name(), paths.NodeName(k.Node))
	return func(ctx context.Context) error {
		if err := logReady(ctx); err != nil {
			return err
		}
		return nodeReady(ctx)
	}
}

func (k *Kubelet) LogPath(layout *paths.Layout) string { return layout.KubeletLog(k.Node) }

func (k *Kubelet) RunDescriptorPath(layout *paths.Layout) string {
	return layout.KubeletRunDescriptor(k.Node)
}
