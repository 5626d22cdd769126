package components

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"os/exec"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/cert"

	"github.com/kubernix/kubernix/pkg/kubernixerrors"
	"github.com/kubernix/kubernix/pkg/pki"
	"github.com/kubernix/kubernix/pkg/process"
)

// adminClientset builds a typed clientset authenticated as the cluster
// admin identity, for components that talk to the API server directly
// instead of tailing their own process log.
func adminClientset(bctx *BuildContext, manifest string) (*kubernetes.Clientset, error) {
	restConfig, err := clientcmd.BuildConfigFromFlags("", bctx.Layout.Kubeconfig(pki.IdentityAdmin))
	if err != nil {
		return nil, &kubernixerrors.KubectlError{Manifest: manifest, Cause: err}
	}
	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, &kubernixerrors.KubectlError{Manifest: manifest, Cause: err}
	}
	return clientset, nil
}

// nodeReadyReady polls the API server until nodeName reports a True Ready
// condition, the way `kubectl get nodes` itself determines readiness.
func nodeReadyReady(bctx *BuildContext, name, nodeName string) ReadinessFunc {
	return func(ctx context.Context) error {
		clientset, err := adminClientset(bctx, nodeName)
		if err != nil {
			return err
		}
		return pollReady(ctx, name, process.DefaultReadyTimeout, func(ctx context.Context) (bool, error) {
			node, err := clientset.CoreV1().Nodes().Get(ctx, nodeName, metav1.GetOptions{})
			if err != nil {
				return false, nil
			}
			for _, cond := range node.Status.Conditions {
				if cond.Type == corev1.NodeReady {
					return cond.Status == corev1.ConditionTrue, nil
				}
			}
			return false, nil
		})
	}
}

// waitLogPattern is shared by every process-based adapter: it tails the
// component's own log file for pattern, independent of the process.Process
// handle the orchestrator uses to actually supervise the binary.
func waitLogPattern(logPath, pattern string) ReadinessFunc {
	return func(ctx context.Context) error {
		return process.WaitForPattern(ctx, logPath, pattern, process.DefaultReadyTimeout)
	}
}

// pollReady calls check every 200ms until it reports ready, ctx is
// cancelled, or timeout elapses, mirroring the polling shape CoreDNS's own
// readiness probe uses against the Kubernetes API.
func pollReady(ctx context.Context, name string, timeout time.Duration, check func(ctx context.Context) (bool, error)) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		if ok, err := check(ctx); err == nil && ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return &kubernixerrors.ReadyTimeout{Component: name, Timeout: timeout.String()}
		case <-ticker.C:
		}
	}
}

// tcpDialReady reports the first successful TCP connection to addr.
func tcpDialReady(name, addr string) ReadinessFunc {
	return func(ctx context.Context) error {
		return pollReady(ctx, name, process.DefaultReadyTimeout, func(ctx context.Context) (bool, error) {
			var d net.Dialer
			conn, err := d.DialContext(ctx, "tcp", addr)
			if err != nil {
				return false, nil
			}
			conn.Close()
			return true, nil
		})
	}
}

// httpsHealthzReady polls url's /healthz endpoint over TLS, trusting the
// CA at caFile, the shape kube-apiserver's own secure healthz takes.
func httpsHealthzReady(name, url, caFile string) ReadinessFunc {
	return func(ctx context.Context) error {
		pool, err := cert.NewPool(caFile)
		if err != nil {
			return &kubernixerrors.ReadyTimeout{Component: name, Timeout: process.DefaultReadyTimeout.String()}
		}
		client := &http.Client{
			Timeout:   2 * time.Second,
			Transport: &http.Transport{TLSClientConfig: &tls.Config{RootCAs: pool}},
		}
		return pollReady(ctx, name, process.DefaultReadyTimeout, func(ctx context.Context) (bool, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return false, err
			}
			resp, err := client.Do(req)
			if err != nil {
				return false, nil
			}
			defer resp.Body.Close()
			return resp.StatusCode == http.StatusOK, nil
		})
	}
}

// httpHealthzReady polls url's /healthz endpoint over plain HTTP, the
// shape kube-controller-manager and kube-scheduler serve their insecure
// healthz on.
func httpHealthzReady(name, url string) ReadinessFunc {
	client := &http.Client{Timeout: 2 * time.Second}
	return func(ctx context.Context) error {
		return pollReady(ctx, name, process.DefaultReadyTimeout, func(ctx context.Context) (bool, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return false, err
			}
			resp, err := client.Do(req)
			if err != nil {
				return false, nil
			}
			defer resp.Body.Close()
			return resp.StatusCode == http.StatusOK, nil
		})
	}
}

// crictlVersionReady reports the CRI-O socket ready once it accepts a unix
// connection and a crictl version handshake against it succeeds.
func crictlVersionReady(name, socket string) ReadinessFunc {
	return func(ctx context.Context) error {
		return pollReady(ctx, name, process.DefaultReadyTimeout, func(ctx context.Context) (bool, error) {
			var d net.Dialer
			conn, err := d.DialContext(ctx, "unix", socket)
			if err != nil {
				return false, nil
			}
			conn.Close()

			cmd := exec.CommandContext(ctx, "crictl", "--runtime-endpoint", "unix://"+socket, "version")
			return cmd.Run() == nil, nil
		})
	}
}
