// Package assets renders the templated configuration files that
// components read at startup: the apiserver encryption config, CRI-O's
// config/policy/CNI conflist, the CoreDNS manifest, kube-proxy's config,
// and per-node kubelet config. Structured documents go through
// gopkg.in/yaml.v3 rather than hand-formatted YAML strings.
package assets

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/kubernix/kubernix/pkg/netplan"
	"github.com/kubernix/kubernix/pkg/paths"
)

// WriteEncryptionConfig renders a fresh 32-byte random key, base64
// encoded, into an APIServer EncryptionConfiguration document.
func WriteEncryptionConfig(layout *paths.Layout) error {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return fmt.Errorf("unable to generate encryption key: %w", err)
	}
	b64 := base64.StdEncoding.EncodeToString(key)

	doc := map[string]interface{}{
		"kind":       "EncryptionConfiguration",
		"apiVersion": "apiserver.config.k8s.io/v1",
		"resources": []map[string]interface{}{
			{
				"resources": []string{"secrets"},
				"providers": []map[string]interface{}{
					{"aescbc": map[string]interface{}{
						"keys": []map[string]string{{"name": "key1", "secret": b64}},
					}},
					{"identity": map[string]interface{}{}},
				},
			},
		},
	}

	return writeYAML(layout.EncryptionConfig(), doc)
}

// CRIOAssets holds the resolved hermetic paths needed to render CRI-O's
// configuration for one node.
type CRIOAssets struct {
	Conmon       string
	Runc         string
	CNIPluginDir string
}

// WriteCRIOConfig renders crio.conf, policy.json, and the per-node CNI
// bridge conflist for node i out of nodes total.
func WriteCRIOConfig(layout *paths.Layout, i, nodes int, plan *netplan.Plan, a CRIOAssets) error {
	if err := os.MkdirAll(filepath.Dir(layout.CRIOCNIConf(i)), 0o755); err != nil {
		return fmt.Errorf("unable to create crio cni dir: %w", err)
	}

	criSubnet, err := plan.CRISubnetForNode(nodes, i)
	if err != nil {
		return err
	}

	conf := fmt.Sprintf(`[crio]
root = %q
runroot = %q
storage_driver = "overlay"

[crio.api]
listen = %q

[crio.runtime]
default_runtime = "runc"
conmon = %q

[crio.runtime.runtimes.runc]
runtime_path = %q
runtime_type = "oci"

[crio.network]
network_dir = %q
plugin_dirs = [%q]
`,
		layout.CRIODataDir(i),
		filepath.Join(layout.CRIODir(i), "run"),
		"unix://"+layout.CRIOSocket(i),
		a.Conmon,
		a.Runc,
		filepath.Dir(layout.CRIOCNIConf(i)),
		a.CNIPluginDir,
	)
	if err = os.WriteFile(layout.CRIOConf(i), []byte(conf), 0o644); err != nil {
		return fmt.Errorf("unable to write crio.conf: %w", err)
	}

	policy := map[string]interface{}{
		"default": []map[string]string{{"type": "insecureAcceptAnything"}},
	}
	if err := writeJSON(layout.CRIOPolicy(i), policy); err != nil {
		return err
	}

	bridgeName := fmt.Sprintf("kubernix%d", i)
	conflist := map[string]interface{}{
		"cniVersion": "0.3.1",
		"name":       fmt.Sprintf("kubernix-node-%d", i),
		"plugins": []map[string]interface{}{
			{
				"type":        "bridge",
				"bridge":      bridgeName,
				"isGateway":   true,
				"ipMasq":      true,
				"hairpinMode": true,
				"ipam": map[string]interface{}{
					"type":   "host-local",
					"subnet": criSubnet.String(),
					"routes": []map[string]string{{"dst": "0.0.0.0/0"}},
				},
			},
			{"type": "loopback"},
		},
	}
	return writeJSON(layout.CRIOCNIConf(i), conflist)
}

// WriteCoreDNSManifest renders the ServiceAccount, ClusterRole,
// ClusterRoleBinding, Corefile ConfigMap, Deployment, and Service documents
// for CoreDNS as a
// single multi-document YAML file, ready for `kubectl apply -f`. The RBAC
// documents are included because CoreDNS cannot list/watch endpoints
// without them.
func WriteCoreDNSManifest(layout *paths.Layout, dnsServiceIP net.IP) error {
	if err := os.MkdirAll(layout.CoreDNSDir(), 0o755); err != nil {
		return fmt.Errorf("unable to create coredns dir: %w", err)
	}

	docs := []map[string]interface{}{
		serviceAccountDoc(),
		clusterRoleDoc(),
		clusterRoleBindingDoc(),
		corefileConfigMapDoc(),
		deploymentDoc(),
		serviceDoc(dnsServiceIP),
	}

	f, err := os.Create(layout.CoreDNSManifest())
	if err != nil {
		return fmt.Errorf("unable to create coredns manifest: %w", err)
	}
	defer f.Close()

	enc := yaml.NewEncoder(f)
	defer enc.Close()
	for _, doc := range docs {
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("unable to encode coredns manifest: %w", err)
		}
	}
	return nil
}

func serviceAccountDoc() map[string]interface{} {
	return map[string]interface{}{
		"apiVersion": "v1",
		"kind":       "ServiceAccount",
		"metadata":   map[string]string{"name": "coredns", "namespace": "kube-system"},
	}
}

func clusterRoleDoc() map[string]interface{} {
	return map[string]interface{}{
		"apiVersion": "rbac.authorization.k8s.io/v1",
		"kind":       "ClusterRole",
		"metadata":   map[string]string{"name": "system:coredns"},
		"rules": []map[string]interface{}{
			{"apiGroups": []string{""}, "resources": []string{"endpoints", "services", "pods", "namespaces"}, "verbs": []string{"list", "watch"}},
		},
	}
}

func clusterRoleBindingDoc() map[string]interface{} {
	return map[string]interface{}{
		"apiVersion": "rbac.authorization.k8s.io/v1",
		"kind":       "ClusterRoleBinding",
		"metadata":   map[string]string{"name": "system:coredns"},
		"roleRef": map[string]string{
			"apiGroup": "rbac.authorization.k8s.io", "kind": "ClusterRole", "name": "system:coredns",
		},
		"subjects": []map[string]string{
			{"kind": "ServiceAccount", "name": "coredns", "namespace": "kube-system"},
		},
	}
}

func corefileConfigMapDoc() map[string]interface{} {
	corefile := `.:53 {
    errors
    health
    kubernetes cluster.local in-addr.arpa ip6.arpa {
      pods insecure
      fallthrough in-addr.arpa ip6.arpa
    }
    forward . /etc/resolv.conf
    cache 30
    loop
    reload
    loadbalance
}
`
	return map[string]interface{}{
		"apiVersion": "v1",
		"kind":       "ConfigMap",
		"metadata":   map[string]string{"name": "coredns", "namespace": "kube-system"},
		"data":       map[string]string{"Corefile": corefile},
	}
}

func deploymentDoc() map[string]interface{} {
	replicas := 1
	return map[string]interface{}{
		"apiVersion": "apps/v1",
		"kind":       "Deployment",
		"metadata":   map[string]string{"name": "coredns", "namespace": "kube-system"},
		"spec": map[string]interface{}{
			"replicas": replicas,
			"selector": map[string]interface{}{"matchLabels": map[string]string{"k8s-app": "kube-dns"}},
			"template": map[string]interface{}{
				"metadata": map[string]interface{}{"labels": map[string]string{"k8s-app": "kube-dns"}},
				"spec": map[string]interface{}{
					"serviceAccountName": "coredns",
					"containers": []map[string]interface{}{
						{
							"name":  "coredns",
							"image": "coredns/coredns:latest",
							"args":  []string{"-conf", "/etc/coredns/Corefile"},
							"ports": []map[string]interface{}{{"containerPort": 53, "name": "dns", "protocol": "UDP"}},
							"volumeMounts": []map[string]interface{}{
								{"name": "config-volume", "mountPath": "/etc/coredns"},
							},
						},
					},
					"volumes": []map[string]interface{}{
						{"name": "config-volume", "configMap": map[string]interface{}{"name": "coredns"}},
					},
				},
			},
		},
	}
}

func serviceDoc(dnsServiceIP net.IP) map[string]interface{} {
	return map[string]interface{}{
		"apiVersion": "v1",
		"kind":       "Service",
		"metadata":   map[string]string{"name": "kube-dns", "namespace": "kube-system"},
		"spec": map[string]interface{}{
			"selector":  map[string]string{"k8s-app": "kube-dns"},
			"clusterIP": dnsServiceIP.String(),
			"ports": []map[string]interface{}{
				{"name": "dns", "port": 53, "protocol": "UDP"},
				{"name": "dns-tcp", "port": 53, "protocol": "TCP"},
			},
		},
	}
}

// WriteProxyConfig renders kube-proxy's KubeProxyConfiguration for node i
// (kube-proxy runs once per node, each with its own config file).
func WriteProxyConfig(layout *paths.Layout, i int, plan *netplan.Plan) error {
	if err := os.MkdirAll(layout.ProxyDir(i), 0o755); err != nil {
		return fmt.Errorf("unable to create proxy dir: %w", err)
	}
	doc := map[string]interface{}{
		"apiVersion":  "kubeproxy.config.k8s.io/v1alpha1",
		"kind":        "KubeProxyConfiguration",
		"clusterCIDR": plan.ClusterCIDR.String(),
		"mode":        "iptables",
	}
	return writeYAML(layout.ProxyConfig(i), doc)
}

// WriteKubeletConfig renders kubelet's KubeletConfiguration for node i.
func WriteKubeletConfig(layout *paths.Layout, i int, plan *netplan.Plan) error {
	if err := os.MkdirAll(layout.KubeletDir(i), 0o755); err != nil {
		return fmt.Errorf("unable to create kubelet dir: %w", err)
	}
	doc := map[string]interface{}{
		"apiVersion":    "kubelet.config.k8s.io/v1beta1",
		"kind":          "KubeletConfiguration",
		"podCIDR":       plan.PerNodeCIDRs[i].String(),
		"clusterDNS":    []string{plan.DNSServiceIP.String()},
		"clusterDomain": "cluster.local",
		"authentication": map[string]interface{}{
			"anonymous": map[string]bool{"enabled": false},
		},
		"authorization": map[string]interface{}{"mode": "Webhook"},
	}
	return writeYAML(layout.KubeletConfig(i), doc)
}

func writeYAML(path string, doc interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("unable to create dir for %s: %w", path, err)
	}
	raw, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("unable to marshal %s: %w", path, err)
	}
	return os.WriteFile(path, raw, 0o644)
}

func writeJSON(path string, doc interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("unable to create dir for %s: %w", path, err)
	}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("unable to marshal %s: %w", path, err)
	}
	return os.WriteFile(path, raw, 0o644)
}
