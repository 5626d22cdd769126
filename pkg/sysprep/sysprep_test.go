package sysprep

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubernix/kubernix/pkg/config"
)

func testConfig(t *testing.T, containerMode bool) *config.Config {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	require.NoError(t, fs.Set("root", t.TempDir()))
	if containerMode {
		require.NoError(t, fs.Set("container", "true"))
	}
	cfg, err := config.Resolve(fs)
	require.NoError(t, err)
	return cfg
}

func TestPrepare_ContainerModeSkipsHostChecks(t *testing.T) {
	cfg := testConfig(t, true)
	assert.NoError(t, Prepare(cfg))
}

func TestUnmountAll_NoMountsUnderRootIsNoop(t *testing.T) {
	dir := t.TempDir()
	errs := UnmountAll(dir)
	assert.Empty(t, errs)
}
