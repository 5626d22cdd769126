package components

import (
	"context"
	"fmt"

	"github.com/kubernix/kubernix/pkg/paths"
	"github.com/kubernix/kubernix/pkg/pki"
	"github.com/kubernix/kubernix/pkg/process"
)

// APIServer runs kube-apiserver against the local etcd instance.
type APIServer struct{}

func (a *APIServer) Name() string           { return "apiserver" }
func (a *APIServer) Dependencies() []string { return []string{"etcd"} }

func (a *APIServer) BuildArgv(bctx *BuildContext) (Argv, error) {
	bin, err := bctx.LookPath("kube-apiserver")
	if err != nil {
		return Argv{}, err
	}
	l := bctx.Layout
	return Argv{
		Path: bin,
		Args: []string{
			"--advertise-address=" + bctx.Plan.APIAdvertiseIP.String(),
			"--allow-privileged=true",
			"--authorization-mode=Node,RBAC",
			"--client-ca-file=" + l.PKICert("ca"),
			"--enable-admission-plugins=NodeRestriction",
			"--etcd-cafile=" + l.PKICert("ca"),
			"--etcd-certfile=" + l.PKICert(pki.IdentityAPIServer),
			"--etcd-keyfile=" + l.PKIKey(pki.IdentityAPIServer),
			"--etcd-servers=https://127.0.0.1:2379",
			"--encryption-provider-config=" + l.EncryptionConfig(),
			"--kubelet-certificate-authority=" + l.PKICert("ca"),
			"--kubelet-client-certificate=" + l.PKICert(pki.IdentityAPIServer),
			"--kubelet-client-key=" + l.PKIKey(pki.IdentityAPIServer),
			"--secure-port=6443",
			"--service-account-key-file=" + l.PKICert(pki.IdentityServiceAccount),
			"--service-account-signing-key-file=" + l.PKIKey(pki.IdentityServiceAccount),
			"--service-account-issuer=https://kubernetes.default.svc.cluster.local",
			fmt.Sprintf("--service-cluster-ip-range=%s", bctx.Plan.ServiceCIDR.String()),
			"--tls-cert-file=" + l.PKICert(pki.IdentityAPIServer),
			"--tls-private-key-file=" + l.PKIKey(pki.IdentityAPIServer),
			"--v=2",
		},
	}, nil
}

// ReadinessProbe waits for the startup log line, then confirms the
// server is actually answering by polling its secure /healthz endpoint
// over TLS trusting the cluster CA.
func (a *APIServer) ReadinessProbe(bctx *BuildContext, proc *process.Process) ReadinessFunc {
	logReady := waitLogPattern(a.LogPath(bctx.Layout), "Serving securely")
	url := fmt.Sprintf("https://%s:6443/healthz", bctx.Plan.APIAdvertiseIP.String())
	healthz := httpsHealthzReady(a.Name(), url, bctx.Layout.PKICert("ca"))
	return func(ctx context.Context) error {
		if err := logReady(ctx); err != nil {
			return err
		}
		return healthz(ctx)
	}
}

func (a *APIServer) LogPath(layout *paths.Layout) string { return layout.APIServerLog() }

func (a *APIServer) RunDescriptorPath(layout *paths.Layout) string {
	return layout.APIServerRunDescriptor()
}
