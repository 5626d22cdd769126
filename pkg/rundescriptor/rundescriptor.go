// Package rundescriptor persists the argv and environment a component was
// last started with, so a component's process can be reproduced manually
// (`command` + `args`, with `env` applied) without going through the
// orchestrator again.
package rundescriptor

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RunDescriptor is the stable, on-disk shape of a component's run.yml.
type RunDescriptor struct {
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`
}

// New builds a RunDescriptor from a command, its args, and its environment
// given as "KEY=VALUE" pairs (the shape os/exec.Cmd.Env uses).
func New(command string, args []string, env []string) *RunDescriptor {
	envMap := make(map[string]string, len(env))
	for _, kv := range env {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				envMap[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	return &RunDescriptor{
		Command: command,
		Args:    append([]string(nil), args...),
		Env:     envMap,
	}
}

// Write persists the descriptor to path as YAML.
func (d *RunDescriptor) Write(path string) error {
	out, err := yaml.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal run descriptor: %w", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("write run descriptor %s: %w", path, err)
	}
	return nil
}

// Load reads and parses a run.yml written by Write.
func Load(path string) (*RunDescriptor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read run descriptor %s: %w", path, err)
	}
	var d RunDescriptor
	if err := yaml.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("parse run descriptor %s: %w", path, err)
	}
	return &d, nil
}

// EnvSlice renders the descriptor's environment back into "KEY=VALUE" pairs
// suitable for os/exec.Cmd.Env.
func (d *RunDescriptor) EnvSlice() []string {
	out := make([]string, 0, len(d.Env))
	for k, v := range d.Env {
		out = append(out, k+"="+v)
	}
	return out
}
