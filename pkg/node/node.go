// Package node represents a kubernix worker. On a single-node cluster the
// worker runs directly on the host. For clusters with more than one node,
// each additional worker's kubelet and kube-proxy run inside a sandbox
// container launched through the configured container runtime driver, with
// host networking and the run root bind-mounted in so the sandbox shares
// the host's CRI-O socket and hermetic binaries.
package node

import (
	"fmt"

	"github.com/kubernix/kubernix/pkg/containerd"
	"github.com/kubernix/kubernix/pkg/paths"
)

// DefaultSandboxImage is a minimal image used only as a container shell:
// every binary actually executed inside it is bind-mounted in from the
// host's hermetic package environment.
const DefaultSandboxImage = "docker.io/library/busybox:stable"

// SandboxName is the container name node i's kubelet/proxy run inside.
func SandboxName(i int) string {
	return fmt.Sprintf("kubernix-node-%d", i)
}

// EnsureSandbox starts node i's sandbox container if it is not already
// running. The run root is bind-mounted read-write at the same path
// inside the container so absolute paths resolved on the host (kubeconfig,
// CRI-O socket, kubelet config) are valid inside the sandbox too.
// memoryBytes caps the sandbox's memory; 0 leaves it unbounded.
func EnsureSandbox(driver containerd.Driver, layout *paths.Layout, i int, image string, memoryBytes int64) error {
	name := SandboxName(i)
	running, err := driver.Running(name)
	if err != nil {
		return err
	}
	if running {
		return nil
	}
	if image == "" {
		image = DefaultSandboxImage
	}
	mounts := []string{layout.Root() + ":" + layout.Root()}
	_, err = driver.Run(name, image, mounts, nil, []string{"sleep", "infinity"}, memoryBytes)
	return err
}

// Wrap rewrites a host path+args pair so the orchestrator execs it inside
// node i's sandbox container instead of spawning it on the host. Node 0
// always runs on the host and is returned unchanged, as is any node when
// driver is nil (single-node clusters never construct one).
func Wrap(driver containerd.Driver, i int, path string, args []string) (string, []string) {
	if driver == nil || i == 0 {
		return path, args
	}
	cmd := driver.Exec(SandboxName(i), append([]string{path}, args...))
	return cmd.Path, cmd.Args[1:]
}

// Stop removes node i's sandbox container, if any. It is a no-op for node 0
// or when driver is nil.
func Stop(driver containerd.Driver, i int) error {
	if driver == nil || i == 0 {
		return nil
	}
	return driver.Stop(SandboxName(i))
}
