package components

import (
	"context"
	"fmt"

	"github.com/kubernix/kubernix/pkg/paths"
	"github.com/kubernix/kubernix/pkg/process"
)

// Etcd runs the single-node etcd instance the apiserver talks to.
type Etcd struct{}

func (e *Etcd) Name() string           { return "etcd" }
func (e *Etcd) Dependencies() []string { return nil }

func (e *Etcd) BuildArgv(bctx *BuildContext) (Argv, error) {
	bin, err := bctx.LookPath("etcd")
	if err != nil {
		return Argv{}, err
	}
	dataDir := bctx.Layout.EtcdDataDir()
	return Argv{
		Path: bin,
		Args: []string{
			"--name=kubernix",
			fmt.Sprintf("--data-dir=%s", dataDir),
			"--listen-client-urls=https://127.0.0.1:2379",
			"--advertise-client-urls=https://127.0.0.1:2379",
			"--listen-peer-urls=https://127.0.0.1:2380",
			"--initial-advertise-peer-urls=https://127.0.0.1:2380",
			"--initial-cluster=kubernix=https://127.0.0.1:2380",
			fmt.Sprintf("--cert-file=%s", bctx.Layout.PKICert("apiserver")),
			fmt.Sprintf("--key-file=%s", bctx.Layout.PKIKey("apiserver")),
			fmt.Sprintf("--trusted-ca-file=%s", bctx.Layout.PKICert("ca")),
			fmt.Sprintf("--peer-cert-file=%s", bctx.Layout.PKICert("apiserver")),
			fmt.Sprintf("--peer-key-file=%s", bctx.Layout.PKIKey("apiserver")),
			fmt.Sprintf("--peer-trusted-ca-file=%s", bctx.Layout.PKICert("ca")),
			"--client-cert-auth=true",
			"--peer-client-cert-auth=true",
		},
	}, nil
}

// ReadinessProbe requires both the client port to accept connections and
// the log marker etcd prints once its store is open for business: the
// socket alone doesn't distinguish "listening" from "actually ready to
// serve," and the log line alone doesn't prove the port is reachable.
func (e *Etcd) ReadinessProbe(bctx *BuildContext, proc *process.Process) ReadinessFunc {
	dial := tcpDialReady(e.Name(), "127.0.0.1:2379")
	logReady := waitLogPattern(e.LogPath(bctx.Layout), "ready to serve client requests")
	return func(ctx context.Context) error {
		if err := dial(ctx); err != nil {
			return err
		}
		return logReady(ctx)
	}
}

func (e *Etcd) LogPath(layout *paths.Layout) string { return layout.EtcdLog() }

func (e *Etcd) RunDescriptorPath(layout *paths.Layout) string { return layout.EtcdRunDescriptor() }
