// Package kubernixerrors defines the error kinds produced by every layer of
// kubernix, so that the top level command can decide how to present a
// failure without string-matching messages.
package kubernixerrors

import "fmt"

// ConfigError signals a bad CIDR, bad node count, or missing privileges
// discovered while resolving configuration.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s", e.Reason)
}

// PkiError wraps a failure generating or signing certificates.
type PkiError struct {
	Identity string
	Cause    error
}

func (e *PkiError) Error() string {
	return fmt.Sprintf("pki error for %s: %v", e.Identity, e.Cause)
}

func (e *PkiError) Unwrap() error { return e.Cause }

// ProcessSpawnError wraps a failure to fork/exec a component's binary.
type ProcessSpawnError struct {
	Component string
	Argv      []string
	Cause     error
}

func (e *ProcessSpawnError) Error() string {
	return fmt.Sprintf("failed to spawn %s (%v): %v", e.Component, e.Argv, e.Cause)
}

func (e *ProcessSpawnError) Unwrap() error { return e.Cause }

// ReadyTimeout signals a component's readiness predicate never became true
// within its deadline.
type ReadyTimeout struct {
	Component string
	Timeout   string
}

func (e *ReadyTimeout) Error() string {
	return fmt.Sprintf("%s did not become ready within %s", e.Component, e.Timeout)
}

// ProcessExited signals that a component which had reached Ready later
// died on its own.
type ProcessExited struct {
	Component string
	Code      int
}

func (e *ProcessExited) Error() string {
	return fmt.Sprintf("%s exited unexpectedly with code %d", e.Component, e.Code)
}

// RuntimeDriverError wraps a failure to create/exec/remove a node container.
type RuntimeDriverError struct {
	Operation string
	Node      string
	Cause     error
}

func (e *RuntimeDriverError) Error() string {
	return fmt.Sprintf("runtime driver %s failed for %s: %v", e.Operation, e.Node, e.Cause)
}

func (e *RuntimeDriverError) Unwrap() error { return e.Cause }

// KubectlError wraps a failure applying a manifest against the cluster.
type KubectlError struct {
	Manifest string
	Cause    error
}

func (e *KubectlError) Error() string {
	return fmt.Sprintf("kubectl apply of %s failed: %v", e.Manifest, e.Cause)
}

func (e *KubectlError) Unwrap() error { return e.Cause }

// TeardownError is always best-effort: it is logged, collected, and never
// re-raised to abort a teardown in progress.
type TeardownError struct {
	Component string
	Cause     error
}

func (e *TeardownError) Error() string {
	return fmt.Sprintf("teardown of %s: %v", e.Component, e.Cause)
}

func (e *TeardownError) Unwrap() error { return e.Cause }

// StartFailed is returned by the orchestrator to the top-level caller when
// bootstrap could not complete, after teardown has already run.
type StartFailed struct {
	Component string
	Cause     error
}

func (e *StartFailed) Error() string {
	return fmt.Sprintf("failed to start %s: %v", e.Component, e.Cause)
}

func (e *StartFailed) Unwrap() error { return e.Cause }
