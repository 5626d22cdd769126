// Package config resolves kubernix's run-time parameters from CLI flags,
// KUBERNIX_-prefixed environment variables, and an optional persisted TOML
// file, in that precedence order, layering viper over cobra/pflag flags.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/docker/go-units"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/kubernix/kubernix/pkg/kubernixerrors"
)

const envPrefix = "KUBERNIX"

// Defaults for every flag RegisterFlags exposes.
const (
	DefaultRoot     = "./kubernix-run"
	DefaultLogLevel = "info"
	DefaultCIDR     = "10.10.0.0/16"
	DefaultNodes    = 1
	DefaultRuntime  = "podman"
)

// Config is the resolved, validated set of run-time parameters. It is
// immutable once returned by Resolve: fields are unexported and reachable
// only through getters, so no downstream package can mutate a shared
// Config out from under another.
type Config struct {
	rootDir         string
	cidr            string
	nodes           int
	runtime         string
	shell           string
	logLevel        string
	overlayPath     string
	extraPackages   []string
	containerMode   bool
	noShell         bool
	nodeMemory      string
	nodeMemoryBytes int64
	explicitFields  map[string]bool
}

func (c *Config) RootDir() string               { return c.rootDir }
func (c *Config) CIDR() string                  { return c.cidr }
func (c *Config) Nodes() int                    { return c.nodes }
func (c *Config) Runtime() string               { return c.runtime }
func (c *Config) Shell() string                 { return c.shell }
func (c *Config) LogLevel() string              { return c.logLevel }
func (c *Config) OverlayPath() string           { return c.overlayPath }
func (c *Config) ExtraPackages() []string       { return append([]string(nil), c.extraPackages...) }
func (c *Config) ContainerMode() bool           { return c.containerMode }
func (c *Config) NoShell() bool                 { return c.noShell }
func (c *Config) NodeMemory() string            { return c.nodeMemory }
func (c *Config) NodeMemoryBytes() int64        { return c.nodeMemoryBytes }
func (c *Config) WasExplicit(field string) bool { return c.explicitFields[field] }

// RegisterFlags adds every kubernix flag to flags, with its documented
// long/short forms and defaults.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.StringP("root", "r", DefaultRoot, "run root directory")
	flags.StringP("log-level", "l", DefaultLogLevel, "trace|debug|info|warn|error")
	flags.StringP("cidr", "c", DefaultCIDR, "IPv4 CIDR to subdivide for the cluster")
	flags.StringP("shell", "s", defaultShell(), "shell binary to launch once the cluster is ready")
	flags.BoolP("no-shell", "e", false, "do not launch a shell; bootstrap and block until signaled")
	flags.IntP("nodes", "n", DefaultNodes, "number of worker nodes")
	flags.StringP("runtime", "u", DefaultRuntime, "container runtime used for node sandboxes when nodes > 1")
	flags.StringP("overlay", "o", "", "path to an additional nix overlay")
	flags.StringSliceP("packages", "p", nil, "extra hermetic packages to include on PATH")
	flags.BoolP("container", "a", false, "assume we are already running inside a container (skip system prep)")
	flags.String("node-memory", "", "memory limit per worker sandbox container, e.g. 1GiB (nodes > 1 only, unlimited if empty)")
}

// Resolve builds a Config by layering, in precedence order: CLI flags
// (highest), KUBERNIX_ environment variables, an on-disk TOML file at
// <root>/kubernix.toml, then defaults (lowest). The root directory used to
// locate that TOML file is itself resolved from flags/env/default before
// anything else, since it decides where to look.
func Resolve(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(flags); err != nil {
		return nil, fmt.Errorf("unable to bind flags: %w", err)
	}

	rootDir, err := filepath.Abs(v.GetString("root"))
	if err != nil {
		return nil, &kubernixerrors.ConfigError{Reason: fmt.Sprintf("unable to resolve root dir: %v", err)}
	}

	tomlPath := filepath.Join(rootDir, "kubernix.toml")
	fileValues := map[string]interface{}{}
	if _, statErr := os.Stat(tomlPath); statErr == nil {
		if _, err := toml.DecodeFile(tomlPath, &fileValues); err != nil {
			return nil, &kubernixerrors.ConfigError{Reason: fmt.Sprintf("unable to parse %s: %v", tomlPath, err)}
		}
		if err := v.MergeConfigMap(fileValues); err != nil {
			return nil, &kubernixerrors.ConfigError{Reason: fmt.Sprintf("unable to merge %s: %v", tomlPath, err)}
		}
	}

	explicit := map[string]bool{}
	for _, key := range []string{"root", "cidr", "nodes", "runtime", "shell", "no-shell", "log-level", "overlay", "packages", "container", "node-memory"} {
		if flags.Changed(key) || os.Getenv(envKey(key)) != "" {
			explicit[key] = true
		} else if _, ok := fileValues[key]; ok {
			explicit[key] = true
		}
	}

	cfg := &Config{
		rootDir:        rootDir,
		cidr:           v.GetString("cidr"),
		nodes:          v.GetInt("nodes"),
		runtime:        v.GetString("runtime"),
		shell:          v.GetString("shell"),
		logLevel:       v.GetString("log-level"),
		overlayPath:    v.GetString("overlay"),
		extraPackages:  v.GetStringSlice("packages"),
		containerMode:  v.GetBool("container"),
		noShell:        v.GetBool("no-shell"),
		nodeMemory:     v.GetString("node-memory"),
		explicitFields: explicit,
	}

	if cfg.nodeMemory != "" {
		memBytes, err := units.RAMInBytes(cfg.nodeMemory)
		if err != nil {
			return nil, &kubernixerrors.ConfigError{Reason: fmt.Sprintf("invalid node-memory %q: %v", cfg.nodeMemory, err)}
		}
		cfg.nodeMemoryBytes = memBytes
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envKey(flagName string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}

func defaultShell() string {
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "sh"
}

func validate(cfg *Config) error {
	if cfg.nodes < 1 {
		return &kubernixerrors.ConfigError{Reason: "nodes must be >= 1"}
	}
	if _, _, err := net.ParseCIDR(cfg.cidr); err != nil {
		return &kubernixerrors.ConfigError{Reason: fmt.Sprintf("invalid cidr %q: %v", cfg.cidr, err)}
	}
	if !filepath.IsAbs(cfg.shell) {
		if _, err := os.Stat(cfg.shell); err != nil {
			// Allow bare command names resolved via PATH at spawn time;
			// only reject a path-looking value that clearly doesn't exist.
			if strings.ContainsRune(cfg.shell, os.PathSeparator) {
				return &kubernixerrors.ConfigError{Reason: fmt.Sprintf("shell %q not found", cfg.shell)}
			}
		}
	}
	if !cfg.containerMode && os.Geteuid() != 0 {
		return &kubernixerrors.ConfigError{Reason: "kubernix must run as root on the host (use --container if already sandboxed)"}
	}
	return nil
}
