package kubeconfig

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/kubernix/kubernix/pkg/netplan"
	"github.com/kubernix/kubernix/pkg/paths"
	"github.com/kubernix/kubernix/pkg/pki"
)

func TestWriteAll_ProducesParsableYAMLForEveryIdentity(t *testing.T) {
	dir := t.TempDir()
	layout := paths.New(dir)
	plan, err := netplan.Compute("10.10.0.0/16", 2)
	require.NoError(t, err)

	bundle, err := pki.GenerateOrLoad(layout, plan, "devbox", 2)
	require.NoError(t, err)

	require.NoError(t, WriteAll(layout, bundle, "10.10.0.1:6443", 2))

	for _, identity := range []string{
		pki.IdentityAdmin, pki.IdentityControllerManager, pki.IdentityScheduler,
		pki.IdentityProxy, pki.KubeletIdentity(0), pki.KubeletIdentity(1),
	} {
		raw, err := os.ReadFile(layout.Kubeconfig(identity))
		require.NoError(t, err, identity)

		var doc map[string]interface{}
		require.NoError(t, yaml.Unmarshal(raw, &doc), identity)
		assert.Equal(t, "v1", doc["apiVersion"])
		assert.Equal(t, "kubernix", doc["current-context"])
	}
}

func TestWrite_UnknownIdentityFails(t *testing.T) {
	dir := t.TempDir()
	layout := paths.New(dir)
	plan, err := netplan.Compute("10.10.0.0/16", 1)
	require.NoError(t, err)
	bundle, err := pki.GenerateOrLoad(layout, plan, "devbox", 1)
	require.NoError(t, err)

	err = Write(layout, bundle, "does-not-exist", "https://x")
	assert.Error(t, err)
}
