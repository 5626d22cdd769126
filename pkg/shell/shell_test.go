package shell

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/term"

	"github.com/kubernix/kubernix/pkg/paths"
)

func TestWriteEnvFile_RendersExports(t *testing.T) {
	dir := t.TempDir()
	layout := paths.New(dir)

	require.NoError(t, WriteEnvFile(layout, Env{
		Kubeconfig:               "/run/kubeconfig/admin.kubeconfig",
		Path:                     "/nix/store/fake/bin",
		ContainerRuntimeEndpoint: "unix:///run/crio-0/crio.sock",
	}))

	content, err := os.ReadFile(layout.EnvFile())
	require.NoError(t, err)

	s := string(content)
	assert.Contains(t, s, `export KUBECONFIG="/run/kubeconfig/admin.kubeconfig"`)
	assert.Contains(t, s, `export PATH="/nix/store/fake/bin"`)
	assert.Contains(t, s, `export CONTAINER_RUNTIME_ENDPOINT="unix:///run/crio-0/crio.sock"`)
}

func TestRun_ExitsWhenShellExits(t *testing.T) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		t.Skip("requires a real controlling terminal for term.MakeRaw")
	}

	dir := t.TempDir()
	layout := paths.New(dir)
	require.NoError(t, WriteEnvFile(layout, Env{Kubeconfig: "x", Path: "y", ContainerRuntimeEndpoint: "z"}))

	script := filepath.Join(dir, "quick-exit.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nexit 0\n"), 0o755))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := Run(ctx, layout, script, dir)
	assert.NoError(t, err)
}
