package pki

import (
	"crypto/x509"
	"encoding/pem"
	"net"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubernix/kubernix/pkg/netplan"
	"github.com/kubernix/kubernix/pkg/paths"
)

func testPlan(t *testing.T) *netplan.Plan {
	t.Helper()
	plan, err := netplan.Compute("10.10.0.0/16", 1)
	require.NoError(t, err)
	return plan
}

func TestGenerateOrLoad_FreshBundleVerifiesUnderCA(t *testing.T) {
	dir := t.TempDir()
	layout := paths.New(dir)
	plan := testPlan(t)

	bundle, err := GenerateOrLoad(layout, plan, "devbox", 1)
	require.NoError(t, err)

	pool := x509.NewCertPool()
	require.True(t, pool.AppendCertsFromPEM(bundle.CA.KeyPair.CertPEM))

	for name, kp := range bundle.Identities {
		block, _ := pem.Decode(kp.CertPEM)
		require.NotNil(t, block, name)
		cert, err := x509.ParseCertificate(block.Bytes)
		require.NoError(t, err, name)

		_, err = cert.Verify(x509.VerifyOptions{
			Roots:     pool,
			KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
		})
		assert.NoError(t, err, "identity %s does not verify under ca", name)
	}
}

func TestGenerateOrLoad_APIServerSANSupersetOfRequired(t *testing.T) {
	dir := t.TempDir()
	layout := paths.New(dir)
	plan := testPlan(t)

	bundle, err := GenerateOrLoad(layout, plan, "devbox", 1)
	require.NoError(t, err)

	block, _ := pem.Decode(bundle.Identities[IdentityAPIServer].CertPEM)
	require.NotNil(t, block)
	cert, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)

	requiredDNS := []string{
		"kubernetes", "kubernetes.default", "kubernetes.default.svc",
		"kubernetes.default.svc.cluster.local", "devbox",
	}
	for _, name := range requiredDNS {
		assert.Contains(t, cert.DNSNames, name)
	}

	requiredIPs := []net.IP{net.ParseIP("127.0.0.1"), plan.KubernetesServiceIP, plan.APIAdvertiseIP}
	for _, ip := range requiredIPs {
		found := false
		for _, certIP := range cert.IPAddresses {
			if certIP.Equal(ip) {
				found = true
				break
			}
		}
		assert.True(t, found, "cert missing required SAN ip %s", ip)
	}
}

func TestGenerateOrLoad_RestartIdempotent(t *testing.T) {
	dir := t.TempDir()
	layout := paths.New(dir)
	plan := testPlan(t)

	first, err := GenerateOrLoad(layout, plan, "devbox", 1)
	require.NoError(t, err)

	caBefore, err := os.ReadFile(layout.PKICert("ca"))
	require.NoError(t, err)

	second, err := GenerateOrLoad(layout, plan, "devbox", 1)
	require.NoError(t, err)

	caAfter, err := os.ReadFile(layout.PKICert("ca"))
	require.NoError(t, err)

	assert.Equal(t, caBefore, caAfter, "ca.pem must not be regenerated on restart")
	assert.Equal(t, first.CA.KeyPair.CertPEM, second.CA.KeyPair.CertPEM)
	assert.Equal(t, first.Identities[IdentityAdmin].CertPEM, second.Identities[IdentityAdmin].CertPEM)
}

func TestGenerateOrLoad_KeyFilePermissions(t *testing.T) {
	dir := t.TempDir()
	layout := paths.New(dir)
	plan := testPlan(t)

	_, err := GenerateOrLoad(layout, plan, "devbox", 1)
	require.NoError(t, err)

	info, err := os.Stat(layout.PKIKey("ca"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
