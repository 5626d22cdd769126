package rundescriptor

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yml")

	d := New("/nix/store/fake/bin/etcd", []string{"--data-dir=/run/etcd", "--name=default"},
		[]string{"PATH=/nix/store/fake/bin", "ETCD_UNSUPPORTED_ARCH=arm64"})

	require.NoError(t, d.Write(path))

	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, d.Command, loaded.Command)
	assert.Equal(t, d.Args, loaded.Args)
	assert.ElementsMatch(t, d.EnvSlice(), loaded.EnvSlice())
}

func TestNew_SplitsEnvOnFirstEquals(t *testing.T) {
	d := New("cmd", nil, []string{"KEY=value=with=equals"})
	assert.Equal(t, "value=with=equals", d.Env["KEY"])
}

func TestLoad_MissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}
