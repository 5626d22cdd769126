package components

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	rbacv1 "k8s.io/api/rbac/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"sigs.k8s.io/yaml"

	"github.com/kubernix/kubernix/pkg/assets"
	"github.com/kubernix/kubernix/pkg/kubernixerrors"
	"github.com/kubernix/kubernix/pkg/paths"
	"github.com/kubernix/kubernix/pkg/process"
)

const coreDNSNamespace = "kube-system"

// CoreDNS is a degenerate Component: it never spawns a long-lived
// process of its own. Its BuildArgv renders and applies a manifest
// through client-go, and its readiness probe polls the resulting
// Deployment's AvailableReplicas instead of tailing a log file.
//
// CoreDNS.Nodes is set by All to the number of worker nodes in the
// cluster; Dependencies uses it to require every kubelet, not just the
// apiserver, so the manifest is never applied before there is at least
// one node capable of scheduling the coredns pod.
type CoreDNS struct{ Nodes int }

func (c *CoreDNS) Name() string { return "coredns" }

func (c *CoreDNS) Dependencies() []string {
	deps := []string{"apiserver"}
	for i := 0; i < c.Nodes; i++ {
		deps = append(deps, fmt.Sprintf("kubelet-%d", i))
	}
	return deps
}

// BuildArgv has no binary to spawn; it performs the manifest apply
// directly and returns an empty Argv so the orchestrator treats this
// component as already "started" once BuildArgv returns without error.
func (c *CoreDNS) BuildArgv(bctx *BuildContext) (Argv, error) {
	if err := assets.WriteCoreDNSManifest(bctx.Layout, dnsServiceIP(bctx)); err != nil {
		return Argv{}, err
	}
	if err := applyManifest(bctx); err != nil {
		return Argv{}, err
	}
	return Argv{}, nil
}

func (c *CoreDNS) ReadinessProbe(bctx *BuildContext, proc *process.Process) ReadinessFunc {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
		defer cancel()
		clientset, err := adminClientset(bctx, "coredns.yml")
		if err != nil {
			return err
		}
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			deploy, err := clientset.AppsV1().Deployments(coreDNSNamespace).Get(ctx, "coredns", metav1.GetOptions{})
			if err == nil && deploy.Status.AvailableReplicas > 0 {
				return nil
			}
			select {
			case <-ctx.Done():
				return &kubernixerrors.ReadyTimeout{Component: c.Name(), Timeout: "60s"}
			case <-ticker.C:
			}
		}
	}
}

// LogPath returns coredns.log even though CoreDNS itself never writes to
// it: the apply's own errors are logged here for debugging.
func (c *CoreDNS) LogPath(layout *paths.Layout) string { return layout.CoreDNSLog() }

func (c *CoreDNS) RunDescriptorPath(layout *paths.Layout) string {
	return layout.CoreDNSRunDescriptor()
}

// applyManifest creates or updates every document in the rendered
// CoreDNS manifest through the typed clientsets it needs (ServiceAccount,
// RBAC, ConfigMap, Deployment, Service), rather than shelling out to a
// kubectl binary.
func applyManifest(bctx *BuildContext) error {
	clientset, err := adminClientset(bctx, "coredns.yml")
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(bctx.Layout.CoreDNSManifest())
	if err != nil {
		return &kubernixerrors.KubectlError{Manifest: bctx.Layout.CoreDNSManifest(), Cause: err}
	}

	ctx := context.Background()
	for _, doc := range splitYAMLDocs(raw) {
		var meta metav1.TypeMeta
		if err := yaml.Unmarshal(doc, &meta); err != nil {
			return &kubernixerrors.KubectlError{Manifest: "coredns.yml", Cause: err}
		}
		if err := applyOne(ctx, clientset, meta.Kind, doc); err != nil {
			return &kubernixerrors.KubectlError{Manifest: fmt.Sprintf("coredns.yml (%s)", meta.Kind), Cause: err}
		}
	}
	return nil
}

func splitYAMLDocs(raw []byte) [][]byte {
	var docs [][]byte
	for _, part := range strings.Split(string(raw), "---\n") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		docs = append(docs, []byte(part))
	}
	return docs
}

func applyOne(ctx context.Context, clientset *kubernetes.Clientset, kind string, doc []byte) error {
	switch kind {
	case "ServiceAccount":
		var obj corev1.ServiceAccount
		if err := yaml.Unmarshal(doc, &obj); err != nil {
			return err
		}
		_, err := clientset.CoreV1().ServiceAccounts(coreDNSNamespace).Create(ctx, &obj, metav1.CreateOptions{})
		return ignoreAlreadyExists(err)

	case "ClusterRole":
		var obj rbacv1.ClusterRole
		if err := yaml.Unmarshal(doc, &obj); err != nil {
			return err
		}
		_, err := clientset.RbacV1().ClusterRoles().Create(ctx, &obj, metav1.CreateOptions{})
		return ignoreAlreadyExists(err)

	case "ClusterRoleBinding":
		var obj rbacv1.ClusterRoleBinding
		if err := yaml.Unmarshal(doc, &obj); err != nil {
			return err
		}
		_, err := clientset.RbacV1().ClusterRoleBindings().Create(ctx, &obj, metav1.CreateOptions{})
		return ignoreAlreadyExists(err)

	case "ConfigMap":
		var obj corev1.ConfigMap
		if err := yaml.Unmarshal(doc, &obj); err != nil {
			return err
		}
		_, err := clientset.CoreV1().ConfigMaps(coreDNSNamespace).Update(ctx, &obj, metav1.UpdateOptions{})
		if apierrors.IsNotFound(err) {
			_, err = clientset.CoreV1().ConfigMaps(coreDNSNamespace).Create(ctx, &obj, metav1.CreateOptions{})
		}
		return err

	case "Deployment":
		var obj appsv1.Deployment
		if err := yaml.Unmarshal(doc, &obj); err != nil {
			return err
		}
		_, err := clientset.AppsV1().Deployments(coreDNSNamespace).Create(ctx, &obj, metav1.CreateOptions{})
		return ignoreAlreadyExists(err)

	case "Service":
		var obj corev1.Service
		if err := yaml.Unmarshal(doc, &obj); err != nil {
			return err
		}
		_, err := clientset.CoreV1().Services(coreDNSNamespace).Create(ctx, &obj, metav1.CreateOptions{})
		return ignoreAlreadyExists(err)

	default:
		return fmt.Errorf("unrecognized coredns manifest kind %q", kind)
	}
}

func ignoreAlreadyExists(err error) error {
	if apierrors.IsAlreadyExists(err) {
		return nil
	}
	return err
}
