package pki

import (
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/kubernix/kubernix/pkg/kubernixerrors"
	"github.com/kubernix/kubernix/pkg/netplan"
	"github.com/kubernix/kubernix/pkg/paths"
)

// Identity names for every certificate kubernix issues.
const (
	IdentityAdmin             = "admin"
	IdentityAPIServer         = "apiserver"
	IdentityControllerManager = "controller-manager"
	IdentityScheduler         = "scheduler"
	IdentityServiceAccount    = "service-account"
	IdentityProxy             = "proxy"
	caFileName                = "ca"
)

// KubeletIdentity returns the per-node kubelet identity name.
func KubeletIdentity(i int) string {
	return fmt.Sprintf("kubelet-%d", i)
}

// Bundle is the CA plus every identity certificate signed for this run.
type Bundle struct {
	CA         *CA
	Identities map[string]*KeyPair
}

// GenerateOrLoad materializes a PKI bundle under layout.PKIDir(). If
// pki/ca.pem already exists it is reused as-is along with every identity
// cert found alongside it, so a restart against an existing run root
// doesn't reissue certificates; otherwise a fresh CA and full identity
// set are generated and written.
func GenerateOrLoad(layout *paths.Layout, plan *netplan.Plan, hostname string, nodes int) (*Bundle, error) {
	if _, err := os.Stat(layout.PKICert(caFileName)); err == nil {
		return load(layout, nodes)
	}
	return generate(layout, plan, hostname, nodes)
}

func identityList(nodes int) []string {
	ids := []string{
		IdentityAdmin, IdentityAPIServer, IdentityControllerManager,
		IdentityScheduler, IdentityServiceAccount, IdentityProxy,
	}
	for i := 0; i < nodes; i++ {
		ids = append(ids, KubeletIdentity(i))
	}
	return ids
}

func load(layout *paths.Layout, nodes int) (*Bundle, error) {
	caKP, err := readKeyPair(layout, caFileName)
	if err != nil {
		return nil, &kubernixerrors.PkiError{Identity: caFileName, Cause: err}
	}
	ca, err := ParseCA(caKP)
	if err != nil {
		return nil, &kubernixerrors.PkiError{Identity: caFileName, Cause: err}
	}

	bundle := &Bundle{CA: ca, Identities: map[string]*KeyPair{}}
	for _, id := range identityList(nodes) {
		kp, err := readKeyPair(layout, id)
		if err != nil {
			return nil, &kubernixerrors.PkiError{Identity: id, Cause: err}
		}
		bundle.Identities[id] = kp
	}
	return bundle, nil
}

func generate(layout *paths.Layout, plan *netplan.Plan, hostname string, nodes int) (*Bundle, error) {
	if err := os.MkdirAll(layout.PKIDir(), 0o755); err != nil {
		return nil, &kubernixerrors.PkiError{Identity: caFileName, Cause: err}
	}

	caBuilder, err := NewBuilder(WithCommonName("kubernetes"), WithOrganization("kubernetes"))
	if err != nil {
		return nil, &kubernixerrors.PkiError{Identity: caFileName, Cause: err}
	}
	caKP, err := caBuilder.Generate()
	if err != nil {
		return nil, &kubernixerrors.PkiError{Identity: caFileName, Cause: err}
	}
	ca, err := ParseCA(caKP)
	if err != nil {
		return nil, &kubernixerrors.PkiError{Identity: caFileName, Cause: err}
	}
	if err := writeKeyPair(layout, caFileName, caKP); err != nil {
		return nil, &kubernixerrors.PkiError{Identity: caFileName, Cause: err}
	}

	bundle := &Bundle{CA: ca, Identities: map[string]*KeyPair{}}

	for _, spec := range identitySpecs(plan, hostname, nodes) {
		builder, err := NewBuilder(append(spec.opts, SignedBy(ca))...)
		if err != nil {
			return nil, &kubernixerrors.PkiError{Identity: spec.name, Cause: err}
		}
		kp, err := builder.Generate()
		if err != nil {
			return nil, &kubernixerrors.PkiError{Identity: spec.name, Cause: err}
		}
		if err := writeKeyPair(layout, spec.name, kp); err != nil {
			return nil, &kubernixerrors.PkiError{Identity: spec.name, Cause: err}
		}
		bundle.Identities[spec.name] = kp
	}

	return bundle, nil
}

type identitySpec struct {
	name string
	opts []Option
}

// identitySpecs returns the CN/O/SAN set for every non-CA identity,
// including the full SAN set the API server certificate requires.
func identitySpecs(plan *netplan.Plan, hostname string, nodes int) []identitySpec {
	specs := []identitySpec{
		{IdentityAdmin, []Option{WithCommonName("admin"), WithOrganization("system:masters")}},
		{
			IdentityAPIServer,
			[]Option{
				WithCommonName("kube-apiserver"),
				WithOrganization("kubernetes"),
				WithIPAddress(net.ParseIP("127.0.0.1")),
				WithDNSName("kubernetes"),
				WithDNSName("kubernetes.default"),
				WithDNSName("kubernetes.default.svc"),
				WithDNSName("kubernetes.default.svc.cluster.local"),
				WithIPAddress(plan.KubernetesServiceIP),
				WithIPAddress(plan.APIAdvertiseIP),
				WithDNSName(hostname),
			},
		},
		{IdentityControllerManager, []Option{WithCommonName("system:kube-controller-manager"), WithOrganization("system:kube-controller-manager")}},
		{IdentityScheduler, []Option{WithCommonName("system:kube-scheduler"), WithOrganization("system:kube-scheduler")}},
		{IdentityServiceAccount, []Option{WithCommonName("service-accounts"), WithOrganization("kubernetes")}},
		{IdentityProxy, []Option{WithCommonName("system:kube-proxy"), WithOrganization("system:node-proxier")}},
	}
	for i := 0; i < nodes; i++ {
		specs = append(specs, identitySpec{
			KubeletIdentity(i),
			[]Option{
				WithCommonName(fmt.Sprintf("system:node:%s", paths.NodeName(i))),
				WithOrganization("system:nodes"),
				WithIPAddress(plan.NodeIPs[i]),
			},
		})
	}
	return specs
}

func writeKeyPair(layout *paths.Layout, name string, kp *KeyPair) error {
	if err := os.MkdirAll(filepath.Dir(layout.PKICert(name)), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(layout.PKICert(name), kp.CertPEM, 0o644); err != nil {
		return err
	}
	// Restrictive permissions on the private key.
	return os.WriteFile(layout.PKIKey(name), kp.KeyPEM, 0o600)
}

func readKeyPair(layout *paths.Layout, name string) (*KeyPair, error) {
	cert, err := os.ReadFile(layout.PKICert(name))
	if err != nil {
		return nil, err
	}
	key, err := os.ReadFile(layout.PKIKey(name))
	if err != nil {
		return nil, err
	}
	return &KeyPair{CertPEM: cert, KeyPEM: key}, nil
}
