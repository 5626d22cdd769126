// Package containerd is the container runtime driver kubernix uses to
// run worker nodes >0 as sandboxes: a thin argv-builder over the podman
// or docker CLI, selected by the resolved runtime name.
package containerd

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/distribution/reference"

	"github.com/kubernix/kubernix/pkg/kubernixerrors"
)

// Driver runs and manages the containers backing worker nodes.
type Driver interface {
	// Name identifies the underlying CLI ("podman" or "docker").
	Name() string

	// Run starts a detached, privileged container named name from
	// image, bind-mounting mounts (host:container pairs), and returns
	// its container ID. memoryBytes caps the container's memory (0 means
	// no limit, matching podman/docker's own --memory semantics).
	Run(name, image string, mounts []string, env []string, cmd []string, memoryBytes int64) (string, error)

	// Exec runs cmd inside the already-running container name and
	// streams its output live (used for the long-lived kubelet/kube-proxy
	// processes that run *inside* a node's container).
	Exec(name string, cmd []string) *exec.Cmd

	// Stop stops and removes the container named name.
	Stop(name string) error

	// Running reports whether a container named name currently exists
	// and is running.
	Running(name string) (bool, error)
}

// New resolves a Driver by runtime name ("podman" or "docker").
func New(runtime string) (Driver, error) {
	switch runtime {
	case "podman":
		return &cliDriver{bin: "podman"}, nil
	case "docker":
		return &cliDriver{bin: "docker"}, nil
	default:
		return nil, &kubernixerrors.ConfigError{Reason: fmt.Sprintf("unsupported runtime %q, want podman or docker", runtime)}
	}
}

// ValidateImage rejects an image reference that the CLI would reject
// anyway, before it is ever handed to exec.Command.
func ValidateImage(image string) error {
	if _, err := reference.ParseNormalizedNamed(image); err != nil {
		return &kubernixerrors.ConfigError{Reason: fmt.Sprintf("invalid image reference %q: %v", image, err)}
	}
	return nil
}

// cliDriver drives either podman or docker, whose CLIs are compatible
// for every operation kubernix needs.
type cliDriver struct {
	bin string
}

func (d *cliDriver) Name() string { return d.bin }

func (d *cliDriver) Run(name, image string, mounts, env, cmd []string, memoryBytes int64) (string, error) {
	if err := ValidateImage(image); err != nil {
		return "", err
	}
	args := []string{"run", "-d", "--privileged", "--network=host", "--name", name}
	for _, m := range mounts {
		args = append(args, "-v", m)
	}
	for _, e := range env {
		args = append(args, "-e", e)
	}
	if memoryBytes > 0 {
		args = append(args, "--memory", strconv.FormatInt(memoryBytes, 10))
	}
	args = append(args, image)
	args = append(args, cmd...)

	out, err := exec.Command(d.bin, args...).Output()
	if err != nil {
		return "", &kubernixerrors.RuntimeDriverError{Operation: "run", Node: name, Cause: err}
	}
	return strings.TrimSpace(string(out)), nil
}

func (d *cliDriver) Exec(name string, cmd []string) *exec.Cmd {
	args := append([]string{"exec", name}, cmd...)
	return exec.Command(d.bin, args...)
}

func (d *cliDriver) Stop(name string) error {
	if err := exec.Command(d.bin, "stop", name).Run(); err != nil {
		return &kubernixerrors.RuntimeDriverError{Operation: "stop", Node: name, Cause: err}
	}
	if err := exec.Command(d.bin, "rm", "-f", name).Run(); err != nil {
		return &kubernixerrors.RuntimeDriverError{Operation: "rm", Node: name, Cause: err}
	}
	return nil
}

func (d *cliDriver) Running(name string) (bool, error) {
	out, err := exec.Command(d.bin, "inspect", "--format", "{{.State.Running}}", name).Output()
	if err != nil {
		return false, nil
	}
	return strings.TrimSpace(string(out)) == "true", nil
}
