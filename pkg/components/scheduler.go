package components

import (
	"context"

	"github.com/kubernix/kubernix/pkg/paths"
	"github.com/kubernix/kubernix/pkg/pki"
	"github.com/kubernix/kubernix/pkg/process"
)

// Scheduler runs kube-scheduler.
type Scheduler struct{}

func (s *Scheduler) Name() string           { return "scheduler" }
func (s *Scheduler) Dependencies() []string { return []string{"apiserver"} }

func (s *Scheduler) BuildArgv(bctx *BuildContext) (Argv, error) {
	bin, err := bctx.LookPath("kube-scheduler")
	if err != nil {
		return Argv{}, err
	}
	return Argv{
		Path: bin,
		Args: []string{
			"--bind-address=127.0.0.1",
			"--kubeconfig=" + bctx.Layout.Kubeconfig(pki.IdentityScheduler),
			"--leader-elect=false",
			"--port=10251",
			"--secure-port=0",
			"--v=2",
		},
	}, nil
}

// ReadinessProbe waits for the startup log line, then confirms the
// insecure healthz port it was given is actually answering.
func (s *Scheduler) ReadinessProbe(bctx *BuildContext, proc *process.Process) ReadinessFunc {
	logReady := waitLogPattern(s.LogPath(bctx.Layout), "Starting Kubernetes Scheduler")
	healthz := httpHealthzReady(s.Name(), "http://127.0.0.1:10251/healthz")
	return func(ctx context.Context) error {
		if err := logReady(ctx); err != nil {
			return err
		}
		return healthz(ctx)
	}
}

func (s *Scheduler) LogPath(layout *paths.Layout) string { return layout.SchedulerLog() }

func (s *Scheduler) RunDescriptorPath(layout *paths.Layout) string {
	return layout.SchedulerRunDescriptor()
}
