package components

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubernix/kubernix/pkg/paths"
	"github.com/kubernix/kubernix/pkg/process"
)

func TestProxy_ReadinessProbe_SucceedsWhileProcessKeepsRunning(t *testing.T) {
	dir := t.TempDir()
	p := &Proxy{Node: 0}
	layout := paths.New(dir)
	logPath := p.LogPath(layout)
	require.NoError(t, os.MkdirAll(layout.ProxyDir(0), 0o755))

	proc := process.New("proxy-0", "/bin/sh", []string{"-c", "echo Caches are synced; sleep 60"}, logPath)
	require.NoError(t, proc.Spawn())
	defer proc.Stop()

	bctx := &BuildContext{Layout: layout}
	ready := p.ReadinessProbe(bctx, proc)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, ready(ctx))
}

func TestProxy_ReadinessProbe_FailsWhenProcessDiesRightAfterLogLine(t *testing.T) {
	dir := t.TempDir()
	p := &Proxy{Node: 0}
	layout := paths.New(dir)
	logPath := p.LogPath(layout)
	require.NoError(t, os.MkdirAll(layout.ProxyDir(0), 0o755))

	proc := process.New("proxy-0", "/bin/sh", []string{"-c", "echo Caches are synced; exit 1"}, logPath)
	require.NoError(t, proc.Spawn())

	select {
	case <-proc.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit")
	}

	bctx := &BuildContext{Layout: layout}
	ready := p.ReadinessProbe(bctx, proc)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.Error(t, ready(ctx))
}
