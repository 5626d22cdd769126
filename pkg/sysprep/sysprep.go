// Package sysprep verifies and configures the host kernel features kubernix
// needs before any component starts, and tears down leftover mounts under
// the run root once the last component has stopped.
package sysprep

import (
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"syscall"

	"github.com/moby/sys/mountinfo"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/kubernix/kubernix/pkg/config"
	"github.com/kubernix/kubernix/pkg/kubernixerrors"
)

var requiredModules = []string{"overlay", "br_netfilter", "ip_conntrack"}

var requiredSysctls = map[string]string{
	"net.bridge.bridge-nf-call-iptables": "1",
	"net.ipv4.ip_forward":                "1",
	"net.ipv4.conf.all.route_localnet":   "1",
}

// Prepare verifies rootful privileges, loads the kernel modules kubernix's
// network stack depends on, and sets the sysctls CNI bridging requires. It
// is a no-op when cfg.ContainerMode is set, since the host already prepared
// these when the outer container was started.
func Prepare(cfg *config.Config) error {
	if cfg.ContainerMode() {
		logrus.Debug("container mode: skipping system prep")
		return nil
	}

	if os.Geteuid() != 0 {
		return &kubernixerrors.ConfigError{Reason: "kubernix must run as root (or with container mode enabled)"}
	}

	if err := loadKernelModules(); err != nil {
		return err
	}
	if err := setSysctls(); err != nil {
		return err
	}
	return nil
}

func loadKernelModules() error {
	for _, m := range requiredModules {
		out, err := exec.Command("modprobe", m).CombinedOutput()
		if err != nil {
			return &kubernixerrors.ConfigError{
				Reason: fmt.Sprintf("modprobe %s failed: %v: %s", m, err, strings.TrimSpace(string(out))),
			}
		}
	}
	return nil
}

func setSysctls() error {
	keys := make([]string, 0, len(requiredSysctls))
	for k := range requiredSysctls {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := requiredSysctls[k]
		out, err := exec.Command("sysctl", "-w", fmt.Sprintf("%s=%s", k, v)).CombinedOutput()
		if err != nil {
			return &kubernixerrors.ConfigError{
				Reason: fmt.Sprintf("sysctl -w %s=%s failed: %v: %s", k, v, err, strings.TrimSpace(string(out))),
			}
		}
	}
	return nil
}

// UnmountAll scans /proc/self/mountinfo for every mount whose target lies
// under root, and unmounts them deepest path first so a parent mount is
// never removed while a child mount still references it.
func UnmountAll(root string) []error {
	mounts, err := mountinfo.GetMounts(mountinfo.PrefixFilter(root))
	if err != nil {
		return []error{fmt.Errorf("scan mounts under %s: %w", root, err)}
	}

	sort.Slice(mounts, func(i, j int) bool {
		return strings.Count(mounts[i].Mountpoint, "/") > strings.Count(mounts[j].Mountpoint, "/")
	})

	var combined error
	for _, m := range mounts {
		if err := unmount(m.Mountpoint); err != nil {
			combined = multierr.Append(combined, fmt.Errorf("unmount %s: %w", m.Mountpoint, err))
		}
	}
	return multierr.Errors(combined)
}

func unmount(target string) error {
	if err := syscall.Unmount(target, 0); err != nil {
		if err == syscall.EINVAL || err == syscall.ENOENT {
			return nil
		}
		return err
	}
	return nil
}
