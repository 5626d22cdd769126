package containerd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_UnsupportedRuntimeFails(t *testing.T) {
	_, err := New("lxc")
	assert.Error(t, err)
}

func TestNew_PodmanAndDocker(t *testing.T) {
	p, err := New("podman")
	require.NoError(t, err)
	assert.Equal(t, "podman", p.Name())

	d, err := New("docker")
	require.NoError(t, err)
	assert.Equal(t, "docker", d.Name())
}

func TestValidateImage(t *testing.T) {
	assert.NoError(t, ValidateImage("alpine:3.19"))
	assert.NoError(t, ValidateImage("docker.io/library/alpine:latest"))
	assert.Error(t, ValidateImage("UPPER CASE not valid"))
}
