// Package components adapts each binary kubernix supervises (etcd,
// kube-apiserver, kube-controller-manager, kube-scheduler, crio,
// kubelet, kube-proxy, coredns) to a single Component interface the
// orchestrator drives without needing to know anything binary-specific.
package components

import (
	"context"
	"net"

	"github.com/kubernix/kubernix/pkg/config"
	"github.com/kubernix/kubernix/pkg/containerd"
	"github.com/kubernix/kubernix/pkg/netplan"
	"github.com/kubernix/kubernix/pkg/paths"
	"github.com/kubernix/kubernix/pkg/pki"
	"github.com/kubernix/kubernix/pkg/process"
)

// BuildContext carries everything an adapter needs to resolve its own
// argv and readiness predicate: the resolved config, network plan, PKI
// bundle, hermetic binary lookup, and (for worker components) the node
// index it is being built for.
type BuildContext struct {
	Config   *config.Config
	Layout   *paths.Layout
	Plan     *netplan.Plan
	Bundle   *pki.Bundle
	Hostname string
	Node     int

	// LookPath resolves a hermetic package's binary by name, e.g.
	// "etcd" -> "/nix/store/.../bin/etcd". Bootstrap wires this to
	// exec.LookPath, which searches PATH; tests wire it to a fake.
	LookPath func(name string) (string, error)

	// Driver is non-nil only for clusters with more than one node; worker
	// adapters use it to run inside a per-node sandbox container instead
	// of directly on the host.
	Driver containerd.Driver

	// NodeImage is the sandbox image worker containers are built from
	// when Driver is set. Empty selects node.DefaultSandboxImage.
	NodeImage string

	// NodeMemoryBytes caps the memory of each worker sandbox container
	// when Driver is set. Zero leaves it unbounded.
	NodeMemoryBytes int64
}

// Argv is a resolved binary path plus its arguments, ready for
// os/exec.Command(argv.Path, argv.Args...).
type Argv struct {
	Path string
	Args []string
}

// ReadinessFunc blocks until the component is ready to serve, ctx is
// cancelled, or the component fails to become ready.
type ReadinessFunc func(ctx context.Context) error

// Component is implemented once per supervised binary. The orchestrator
// only ever talks to this interface, never to a component's concrete
// type, so adding a new component never touches orchestrator code.
type Component interface {
	// Name is the identifier used in dependency lists, logs, and
	// process directories.
	Name() string

	// Dependencies lists the component names that must be Ready before
	// this component may be started.
	Dependencies() []string

	// BuildArgv resolves this component's binary and arguments for the
	// given build context.
	BuildArgv(bctx *BuildContext) (Argv, error)

	// ReadinessProbe returns a function the orchestrator calls once the
	// process has spawned, to learn when it is safe to start
	// dependents. proc is the spawned process handle (nil for components
	// like CoreDNS whose BuildArgv never returns a binary to run), so an
	// adapter that needs to confirm its own process is still alive
	// alongside its log/protocol checks can call proc.Running().
	ReadinessProbe(bctx *BuildContext, proc *process.Process) ReadinessFunc

	// LogPath is where this component's stdout/stderr are redirected.
	LogPath(layout *paths.Layout) string

	// RunDescriptorPath is where this component's run.yml (its resolved
	// argv and environment, for postmortem reproduction) is persisted
	// once it reaches Ready.
	RunDescriptorPath(layout *paths.Layout) string
}

// controlPlaneComponents lists the fixed, single-instance components
// that run once regardless of node count. coredns additionally depends
// on every one of nodes' kubelets, so it needs the count up front.
func controlPlaneComponents(nodes int) []Component {
	return []Component{&Etcd{}, &APIServer{}, &ControllerManager{}, &Scheduler{}, &CoreDNS{Nodes: nodes}}
}

// WorkerComponents returns the per-node components for node i: crio,
// kubelet, kube-proxy.
func WorkerComponents(i int) []Component {
	return []Component{&Crio{Node: i}, &Kubelet{Node: i}, &Proxy{Node: i}}
}

// All returns every component for a cluster of the given node count, in
// no particular order — the orchestrator derives ordering from
// Dependencies(), not from slice position.
func All(nodes int) []Component {
	all := controlPlaneComponents(nodes)
	for i := 0; i < nodes; i++ {
		all = append(all, WorkerComponents(i)...)
	}
	return all
}

func dnsServiceIP(bctx *BuildContext) net.IP { return bctx.Plan.DNSServiceIP }
