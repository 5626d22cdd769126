package node

import (
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubernix/kubernix/pkg/paths"
)

type fakeDriver struct {
	running   map[string]bool
	runCalls  []string
	runMemory []int64
	stopCalls []string
	runErr    error
}

func newFakeDriver() *fakeDriver { return &fakeDriver{running: map[string]bool{}} }

func (f *fakeDriver) Name() string { return "fake" }

func (f *fakeDriver) Run(name, image string, mounts, env, cmd []string, memoryBytes int64) (string, error) {
	if f.runErr != nil {
		return "", f.runErr
	}
	f.runCalls = append(f.runCalls, name)
	f.runMemory = append(f.runMemory, memoryBytes)
	f.running[name] = true
	return name + "-id", nil
}

func (f *fakeDriver) Exec(name string, cmd []string) *exec.Cmd {
	return exec.Command(name, cmd...)
}

func (f *fakeDriver) Stop(name string) error {
	f.stopCalls = append(f.stopCalls, name)
	delete(f.running, name)
	return nil
}

func (f *fakeDriver) Running(name string) (bool, error) {
	return f.running[name], nil
}

func TestEnsureSandbox_StartsWhenNotRunning(t *testing.T) {
	d := newFakeDriver()
	layout := paths.New(t.TempDir())

	require.NoError(t, EnsureSandbox(d, layout, 1, "", 0))
	assert.Equal(t, []string{"kubernix-node-1"}, d.runCalls)
	assert.True(t, d.running["kubernix-node-1"])
}

func TestEnsureSandbox_PassesMemoryLimitThrough(t *testing.T) {
	d := newFakeDriver()
	layout := paths.New(t.TempDir())

	require.NoError(t, EnsureSandbox(d, layout, 1, "", 512*1024*1024))
	assert.Equal(t, []int64{512 * 1024 * 1024}, d.runMemory)
}

func TestEnsureSandbox_IdempotentWhenAlreadyRunning(t *testing.T) {
	d := newFakeDriver()
	d.running[SandboxName(2)] = true
	layout := paths.New(t.TempDir())

	require.NoError(t, EnsureSandbox(d, layout, 2, "", 0))
	assert.Empty(t, d.runCalls)
}

func TestWrap_NoOpForHostNodeOrNilDriver(t *testing.T) {
	path, args := Wrap(nil, 1, "/bin/kubelet", []string{"--v=2"})
	assert.Equal(t, "/bin/kubelet", path)
	assert.Equal(t, []string{"--v=2"}, args)

	d := newFakeDriver()
	path, args = Wrap(d, 0, "/bin/kubelet", []string{"--v=2"})
	assert.Equal(t, "/bin/kubelet", path)
	assert.Equal(t, []string{"--v=2"}, args)
}

func TestWrap_RewritesIntoSandboxExec(t *testing.T) {
	d := newFakeDriver()
	path, args := Wrap(d, 1, "/bin/kubelet", []string{"--v=2"})

	cmd := d.Exec(SandboxName(1), append([]string{"/bin/kubelet"}, "--v=2"))
	assert.Equal(t, cmd.Path, path)
	assert.Equal(t, cmd.Args[1:], args)
}

func TestStop_NoOpForHostNodeOrNilDriver(t *testing.T) {
	assert.NoError(t, Stop(nil, 1))

	d := newFakeDriver()
	require.NoError(t, Stop(d, 0))
	assert.Empty(t, d.stopCalls)
}

func TestStop_RemovesSandbox(t *testing.T) {
	d := newFakeDriver()
	d.running[SandboxName(3)] = true

	require.NoError(t, Stop(d, 3))
	assert.Equal(t, []string{"kubernix-node-3"}, d.stopCalls)
	assert.False(t, d.running[SandboxName(3)])
}
