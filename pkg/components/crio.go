package components

import (
	"context"
	"fmt"

	"github.com/kubernix/kubernix/pkg/assets"
	"github.com/kubernix/kubernix/pkg/paths"
	"github.com/kubernix/kubernix/pkg/process"
)

// Crio runs one CRI-O daemon per worker node. It depends on the
// apiserver being up: nothing in its own argv talks to the apiserver,
// but it is the first link in the per-node crio -> kubelet -> proxy
// chain the control plane must already exist for.
type Crio struct{ Node int }

func (c *Crio) Name() string           { return fmt.Sprintf("crio-%d", c.Node) }
func (c *Crio) Dependencies() []string { return []string{"apiserver"} }

func (c *Crio) BuildArgv(bctx *BuildContext) (Argv, error) {
	bin, err := bctx.LookPath("crio")
	if err != nil {
		return Argv{}, err
	}
	conmon, err := bctx.LookPath("conmon")
	if err != nil {
		return Argv{}, err
	}
	runc, err := bctx.LookPath("runc")
	if err != nil {
		return Argv{}, err
	}
	cniPluginDir, err := bctx.LookPath("cni-plugins")
	if err != nil {
		return Argv{}, err
	}

	if err := assets.WriteCRIOConfig(bctx.Layout, c.Node, bctx.Config.Nodes(), bctx.Plan, assets.CRIOAssets{
		Conmon:       conmon,
		Runc:         runc,
		CNIPluginDir: cniPluginDir,
	}); err != nil {
		return Argv{}, err
	}

	return Argv{
		Path: bin,
		Args: []string{fmt.Sprintf("--config=%s", bctx.Layout.CRIOConf(c.Node))},
	}, nil
}

// ReadinessProbe waits for the startup log line, then confirms the CRI
// socket itself is answering by running crictl version against it.
func (c *Crio) ReadinessProbe(bctx *BuildContext, proc *process.Process) ReadinessFunc {
	logReady := waitLogPattern(c.LogPath(bctx.Layout), "sandboxes:")
	crictl := crictlVersionReady(c.Name(), bctx.Layout.CRIOSocket(c.Node))
	return func(ctx context.Context) error {
		if err := logReady(ctx); err != nil {
			return err
		}
		return crictl(ctx)
	}
}

func (c *Crio) LogPath(layout *paths.Layout) string { return layout.CRIOLog(c.Node) }

func (c *Crio) RunDescriptorPath(layout *paths.Layout) string {
	return layout.CRIORunDescriptor(c.Node)
}
