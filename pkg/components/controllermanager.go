package components

import (
	"context"
	"fmt"

	"github.com/kubernix/kubernix/pkg/paths"
	"github.com/kubernix/kubernix/pkg/pki"
	"github.com/kubernix/kubernix/pkg/process"
)

// ControllerManager runs kube-controller-manager.
type ControllerManager struct{}

func (c *ControllerManager) Name() string           { return "controllermanager" }
func (c *ControllerManager) Dependencies() []string { return []string{"apiserver"} }

func (c *ControllerManager) BuildArgv(bctx *BuildContext) (Argv, error) {
	bin, err := bctx.LookPath("kube-controller-manager")
	if err != nil {
		return Argv{}, err
	}
	l := bctx.Layout
	return Argv{
		Path: bin,
		Args: []string{
			"--allocate-node-cidrs=true",
			"--bind-address=127.0.0.1",
			"--cluster-cidr=" + bctx.Plan.ClusterCIDR.String(),
			"--cluster-name=kubernix",
			"--cluster-signing-cert-file=" + l.PKICert("ca"),
			"--cluster-signing-key-file=" + l.PKIKey("ca"),
			"--kubeconfig=" + l.Kubeconfig(pki.IdentityControllerManager),
			"--leader-elect=false",
			"--port=10252",
			"--root-ca-file=" + l.PKICert("ca"),
			"--secure-port=0",
			"--service-account-private-key-file=" + l.PKIKey(pki.IdentityServiceAccount),
			fmt.Sprintf("--service-cluster-ip-range=%s", bctx.Plan.ServiceCIDR.String()),
			"--use-service-account-credentials=true",
			"--v=2",
		},
	}, nil
}

// ReadinessProbe waits for the startup log line, then confirms the
// insecure healthz port it was given is actually answering.
func (c *ControllerManager) ReadinessProbe(bctx *BuildContext, proc *process.Process) ReadinessFunc {
	logReady := waitLogPattern(c.LogPath(bctx.Layout), "Starting garbage collector controller")
	healthz := httpHealthzReady(c.Name(), "http://127.0.0.1:10252/healthz")
	return func(ctx context.Context) error {
		if err := logReady(ctx); err != nil {
			return err
		}
		return healthz(ctx)
	}
}

func (c *ControllerManager) LogPath(layout *paths.Layout) string {
	return layout.ControllerManagerLog()
}

func (c *ControllerManager) RunDescriptorPath(layout *paths.Layout) string {
	return layout.ControllerManagerRunDescriptor()
}
