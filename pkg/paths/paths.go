// Package paths defines the canonical directory layout under a kubernix
// run root. Every other package that needs a path on disk asks this
// package for it rather than joining strings itself, keeping the
// on-disk layout defined in exactly one place.
package paths

import (
	"fmt"
	"path/filepath"

	"github.com/gosimple/slug"
)

// Layout is a pure function of a run root: every method just joins paths,
// it never touches disk.
type Layout struct {
	root string
}

// New returns a Layout rooted at root. root should already be an absolute,
// cleaned path (see config.Resolve, which canonicalises it).
func New(root string) *Layout {
	return &Layout{root: filepath.Clean(root)}
}

func (l *Layout) Root() string { return l.root }

// NodeName returns the slug-safe name for worker i: node-<i> for every i,
// node 0 included. No caller substitutes the host's hostname for node 0.
func NodeName(i int) string {
	return slug.Make(fmt.Sprintf("node-%d", i))
}

func (l *Layout) TOMLConfig() string  { return filepath.Join(l.root, "kubernix.toml") }
func (l *Layout) EnvFile() string     { return filepath.Join(l.root, "kubernix.env") }
func (l *Layout) KubernixLog() string { return filepath.Join(l.root, "kubernix.log") }

func (l *Layout) PKIDir() string             { return filepath.Join(l.root, "pki") }
func (l *Layout) PKICert(name string) string { return filepath.Join(l.PKIDir(), name+".pem") }
func (l *Layout) PKIKey(name string) string  { return filepath.Join(l.PKIDir(), name+"-key.pem") }

func (l *Layout) KubeconfigDir() string { return filepath.Join(l.root, "kubeconfig") }
func (l *Layout) Kubeconfig(identity string) string {
	return filepath.Join(l.KubeconfigDir(), identity+".kubeconfig")
}

func (l *Layout) EncryptionConfigDir() string { return filepath.Join(l.root, "encryptionconfig") }
func (l *Layout) EncryptionConfig() string {
	return filepath.Join(l.EncryptionConfigDir(), "config.yml")
}

func (l *Layout) CRIODir(i int) string { return filepath.Join(l.root, fmt.Sprintf("crio-%d", i)) }
func (l *Layout) CRIOConf(i int) string {
	return filepath.Join(l.CRIODir(i), "crio.conf")
}
func (l *Layout) CRIOPolicy(i int) string {
	return filepath.Join(l.CRIODir(i), "policy.json")
}
func (l *Layout) CRIOCNIConf(i int) string {
	return filepath.Join(l.CRIODir(i), "cni", "10-bridge.conflist")
}
func (l *Layout) CRIOSocket(i int) string {
	return filepath.Join(l.CRIODir(i), "crio.sock")
}
func (l *Layout) CRIODataDir(i int) string {
	return filepath.Join(l.CRIODir(i), "storage")
}
func (l *Layout) CRIOLog(i int) string { return filepath.Join(l.CRIODir(i), "crio.log") }
func (l *Layout) CRIORunDescriptor(i int) string {
	return filepath.Join(l.CRIODir(i), "run.yml")
}

func (l *Layout) CoreDNSDir() string      { return filepath.Join(l.root, "coredns") }
func (l *Layout) CoreDNSManifest() string { return filepath.Join(l.CoreDNSDir(), "coredns.yml") }
func (l *Layout) CoreDNSLog() string      { return filepath.Join(l.CoreDNSDir(), "coredns.log") }
func (l *Layout) CoreDNSRunDescriptor() string {
	return filepath.Join(l.CoreDNSDir(), "run.yml")
}

func (l *Layout) ProxyDir(i int) string  { return filepath.Join(l.root, fmt.Sprintf("proxy-%d", i)) }
func (l *Layout) ProxyConfig(i int) string {
	return filepath.Join(l.ProxyDir(i), "config.yml")
}
func (l *Layout) ProxyLog(i int) string { return filepath.Join(l.ProxyDir(i), "proxy.log") }
func (l *Layout) ProxyRunDescriptor(i int) string {
	return filepath.Join(l.ProxyDir(i), "run.yml")
}

func (l *Layout) KubeletDir(i int) string {
	return filepath.Join(l.root, fmt.Sprintf("kubelet-%d", i))
}
func (l *Layout) KubeletConfig(i int) string {
	return filepath.Join(l.KubeletDir(i), fmt.Sprintf("config-%d.yml", i))
}
func (l *Layout) KubeletRootDir(i int) string {
	return filepath.Join(l.KubeletDir(i), "var-lib-kubelet")
}
func (l *Layout) KubeletLog(i int) string { return filepath.Join(l.KubeletDir(i), "kubelet.log") }
func (l *Layout) KubeletRunDescriptor(i int) string {
	return filepath.Join(l.KubeletDir(i), "run.yml")
}

func (l *Layout) EtcdDir() string     { return filepath.Join(l.root, "etcd") }
func (l *Layout) EtcdDataDir() string { return filepath.Join(l.EtcdDir(), "data") }
func (l *Layout) EtcdLog() string     { return filepath.Join(l.EtcdDir(), "etcd.log") }
func (l *Layout) EtcdRunDescriptor() string {
	return filepath.Join(l.EtcdDir(), "run.yml")
}

func (l *Layout) APIServerDir() string { return filepath.Join(l.root, "apiserver") }
func (l *Layout) APIServerLog() string { return filepath.Join(l.APIServerDir(), "apiserver.log") }
func (l *Layout) APIServerRunDescriptor() string {
	return filepath.Join(l.APIServerDir(), "run.yml")
}

func (l *Layout) ControllerManagerDir() string {
	return filepath.Join(l.root, "controllermanager")
}
func (l *Layout) ControllerManagerLog() string {
	return filepath.Join(l.ControllerManagerDir(), "controllermanager.log")
}
func (l *Layout) ControllerManagerRunDescriptor() string {
	return filepath.Join(l.ControllerManagerDir(), "run.yml")
}

func (l *Layout) SchedulerDir() string { return filepath.Join(l.root, "scheduler") }
func (l *Layout) SchedulerLog() string { return filepath.Join(l.SchedulerDir(), "scheduler.log") }
func (l *Layout) SchedulerRunDescriptor() string {
	return filepath.Join(l.SchedulerDir(), "run.yml")
}

func (l *Layout) NixDir() string { return filepath.Join(l.root, "nix") }

// AllComponentDirs returns every per-component directory that must exist
// before that component's process spawns, for a cluster of the given node
// count.
func (l *Layout) AllComponentDirs(nodes int) []string {
	dirs := []string{
		l.PKIDir(), l.KubeconfigDir(), l.EncryptionConfigDir(),
		l.CoreDNSDir(), l.EtcdDir(), l.APIServerDir(),
		l.ControllerManagerDir(), l.SchedulerDir(),
	}
	for i := 0; i < nodes; i++ {
		dirs = append(dirs, l.CRIODir(i), filepath.Dir(l.CRIOCNIConf(i)), l.ProxyDir(i), l.KubeletDir(i))
	}
	return dirs
}
