package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
)

// WarnIfPersisted logs a warning if a kubernix.toml already exists at
// root: persisted values only take effect where CLI/env left a field
// unset.
func WarnIfPersisted(rootDir string) {
	path := filepath.Join(rootDir, "kubernix.toml")
	if _, err := os.Stat(path); err == nil {
		logrus.Warnf("%s already exists; its values take effect only where --flags or KUBERNIX_ env vars are unset", path)
	}
}

// tomlDoc mirrors the subset of Config fields that round-trip through the
// TOML file. Fields are pointers so that omitempty-by-explicitness can
// leave a field out entirely rather than writing its zero value.
type tomlDoc struct {
	Root       *string   `toml:"root,omitempty"`
	CIDR       *string   `toml:"cidr,omitempty"`
	Nodes      *int      `toml:"nodes,omitempty"`
	Runtime    *string   `toml:"runtime,omitempty"`
	Shell      *string   `toml:"shell,omitempty"`
	NoShell    *bool     `toml:"no-shell,omitempty"`
	LogLevel   *string   `toml:"log-level,omitempty"`
	Overlay    *string   `toml:"overlay,omitempty"`
	Packages   *[]string `toml:"packages,omitempty"`
	Container  *bool     `toml:"container,omitempty"`
	NodeMemory *string   `toml:"node-memory,omitempty"`
}

// Persist rewrites <root>/kubernix.toml with only the fields that were
// explicitly set by flag, environment, or a prior TOML file, never
// implicit defaults: round-tripping every effective value including
// defaults would make a config file's provenance unrecoverable, so
// kubernix writes only what a human or script actually asked for.
func Persist(cfg *Config) error {
	doc := tomlDoc{}
	if cfg.WasExplicit("root") {
		doc.Root = strPtr(cfg.rootDir)
	}
	if cfg.WasExplicit("cidr") {
		doc.CIDR = strPtr(cfg.cidr)
	}
	if cfg.WasExplicit("nodes") {
		doc.Nodes = intPtr(cfg.nodes)
	}
	if cfg.WasExplicit("runtime") {
		doc.Runtime = strPtr(cfg.runtime)
	}
	if cfg.WasExplicit("shell") {
		doc.Shell = strPtr(cfg.shell)
	}
	if cfg.WasExplicit("no-shell") {
		doc.NoShell = boolPtr(cfg.noShell)
	}
	if cfg.WasExplicit("log-level") {
		doc.LogLevel = strPtr(cfg.logLevel)
	}
	if cfg.WasExplicit("overlay") {
		doc.Overlay = strPtr(cfg.overlayPath)
	}
	if cfg.WasExplicit("packages") {
		pkgs := cfg.ExtraPackages()
		doc.Packages = &pkgs
	}
	if cfg.WasExplicit("container") {
		doc.Container = boolPtr(cfg.containerMode)
	}
	if cfg.WasExplicit("node-memory") {
		doc.NodeMemory = strPtr(cfg.nodeMemory)
	}

	if err := os.MkdirAll(cfg.rootDir, 0o755); err != nil {
		return fmt.Errorf("unable to create root dir: %w", err)
	}

	buf := &bytes.Buffer{}
	if err := toml.NewEncoder(buf).Encode(doc); err != nil {
		return fmt.Errorf("unable to encode kubernix.toml: %w", err)
	}

	return os.WriteFile(filepath.Join(cfg.rootDir, "kubernix.toml"), buf.Bytes(), 0o644)
}

// WriteEnvFile renders kubernix.env: every effective value plus a PATH
// containing the hermetic package paths, for a script that wants to
// `source` it directly. Bootstrap later overwrites the same file with
// shell.WriteEnvFile's rendering before it launches the interactive shell.
func WriteEnvFile(cfg *Config, hermeticPath string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "export KUBERNIX_ROOT=%q\n", cfg.rootDir)
	fmt.Fprintf(&b, "export KUBERNIX_CIDR=%q\n", cfg.cidr)
	fmt.Fprintf(&b, "export KUBERNIX_NODES=%d\n", cfg.nodes)
	fmt.Fprintf(&b, "export KUBERNIX_RUNTIME=%q\n", cfg.runtime)
	fmt.Fprintf(&b, "export KUBERNIX_LOG_LEVEL=%q\n", cfg.logLevel)
	fmt.Fprintf(&b, "export KUBERNIX_SHELL=%q\n", cfg.shell)
	fmt.Fprintf(&b, "export KUBERNIX_NO_SHELL=%t\n", cfg.noShell)
	fmt.Fprintf(&b, "export KUBERNIX_CONTAINER=%t\n", cfg.containerMode)
	if cfg.overlayPath != "" {
		fmt.Fprintf(&b, "export KUBERNIX_OVERLAY=%q\n", cfg.overlayPath)
	}
	if len(cfg.extraPackages) > 0 {
		fmt.Fprintf(&b, "export KUBERNIX_PACKAGES=%q\n", strings.Join(cfg.extraPackages, " "))
	}
	if cfg.nodeMemory != "" {
		fmt.Fprintf(&b, "export KUBERNIX_NODE_MEMORY=%q\n", cfg.nodeMemory)
	}
	fmt.Fprintf(&b, "export KUBECONFIG=%q\n", filepath.Join(cfg.rootDir, "kubeconfig", "admin.kubeconfig"))
	path := os.Getenv("PATH")
	if hermeticPath != "" {
		path = hermeticPath + string(os.PathListSeparator) + path
	}
	fmt.Fprintf(&b, "export PATH=%q\n", path)

	return os.WriteFile(filepath.Join(cfg.rootDir, "kubernix.env"), []byte(b.String()), 0o644)
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }
func boolPtr(b bool) *bool    { return &b }
