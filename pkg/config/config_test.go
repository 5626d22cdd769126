package config

import (
	"os"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	return fs
}

func TestResolve_Defaults(t *testing.T) {
	if os.Geteuid() != 0 {
		t.Skip("requires root; see TestResolve_NonRootWithoutContainerFails for the negative case")
	}
	dir := t.TempDir()
	fs := newFlags()
	require.NoError(t, fs.Set("root", dir))

	cfg, err := Resolve(fs)
	require.NoError(t, err)
	assert.Equal(t, DefaultCIDR, cfg.CIDR())
	assert.Equal(t, DefaultNodes, cfg.Nodes())
	assert.Equal(t, DefaultRuntime, cfg.Runtime())
}

func TestResolve_UnparsableCIDRFails(t *testing.T) {
	// Config only validates that the cidr parses; netplan is responsible
	// for rejecting a cidr that can't be split for the node count.
	dir := t.TempDir()
	fs := newFlags()
	require.NoError(t, fs.Set("root", dir))
	require.NoError(t, fs.Set("cidr", "not-a-cidr"))
	require.NoError(t, fs.Set("container", "true"))

	_, err := Resolve(fs)
	assert.Error(t, err)
}

func TestResolve_NodesLessThanOneFails(t *testing.T) {
	dir := t.TempDir()
	fs := newFlags()
	require.NoError(t, fs.Set("root", dir))
	require.NoError(t, fs.Set("nodes", "0"))
	require.NoError(t, fs.Set("container", "true"))

	_, err := Resolve(fs)
	assert.Error(t, err)
}

func TestResolve_ContainerModeSkipsRootCheck(t *testing.T) {
	dir := t.TempDir()
	fs := newFlags()
	require.NoError(t, fs.Set("root", dir))
	require.NoError(t, fs.Set("container", "true"))

	cfg, err := Resolve(fs)
	require.NoError(t, err)
	assert.True(t, cfg.ContainerMode())
}

func TestResolve_NonRootWithoutContainerFails(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("test assumes non-root invocation")
	}
	dir := t.TempDir()
	fs := newFlags()
	require.NoError(t, fs.Set("root", dir))

	_, err := Resolve(fs)
	assert.Error(t, err)
}

func TestPersist_OnlyWritesExplicitFields(t *testing.T) {
	dir := t.TempDir()
	fs := newFlags()
	require.NoError(t, fs.Set("root", dir))
	require.NoError(t, fs.Set("container", "true"))
	require.NoError(t, fs.Set("nodes", "3"))

	cfg, err := Resolve(fs)
	require.NoError(t, err)
	require.NoError(t, Persist(cfg))

	raw, err := os.ReadFile(dir + "/kubernix.toml")
	require.NoError(t, err)
	content := string(raw)
	assert.Contains(t, content, "nodes")
	assert.NotContains(t, content, "runtime")
	assert.NotContains(t, content, "cidr")
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "KUBERNIX_LOG_LEVEL", envKey("log-level"))
	assert.Equal(t, "KUBERNIX_NODES", envKey("nodes"))
}

func TestResolve_NodeMemoryParsesHumanSize(t *testing.T) {
	dir := t.TempDir()
	fs := newFlags()
	require.NoError(t, fs.Set("root", dir))
	require.NoError(t, fs.Set("container", "true"))
	require.NoError(t, fs.Set("node-memory", "512MiB"))

	cfg, err := Resolve(fs)
	require.NoError(t, err)
	assert.EqualValues(t, 512*1024*1024, cfg.NodeMemoryBytes())
}

func TestResolve_NodeMemoryRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	fs := newFlags()
	require.NoError(t, fs.Set("root", dir))
	require.NoError(t, fs.Set("container", "true"))
	require.NoError(t, fs.Set("node-memory", "not-a-size"))

	_, err := Resolve(fs)
	assert.Error(t, err)
}

func TestWriteEnvFile_IncludesNodeMemoryOnlyWhenSet(t *testing.T) {
	dir := t.TempDir()
	fs := newFlags()
	require.NoError(t, fs.Set("root", dir))
	require.NoError(t, fs.Set("container", "true"))
	require.NoError(t, fs.Set("node-memory", "1GiB"))

	cfg, err := Resolve(fs)
	require.NoError(t, err)
	require.NoError(t, WriteEnvFile(cfg, ""))

	raw, err := os.ReadFile(dir + "/kubernix.env")
	require.NoError(t, err)
	assert.Contains(t, string(raw), "KUBERNIX_NODE_MEMORY=\"1GiB\"")
}
