// Package shell launches the user's interactive shell against a bootstrapped
// cluster: it renders kubernix.env, starts the shell attached to a PTY with
// SIGWINCH-driven resizing, and blocks until the shell exits.
package shell

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	"github.com/creack/pty"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"

	"github.com/kubernix/kubernix/pkg/paths"
)

// Env is the set of variables kubernix.env exports into every shell it
// launches.
type Env struct {
	Kubeconfig               string
	Path                     string
	ContainerRuntimeEndpoint string
}

// WriteEnvFile renders kubernix.env at layout.EnvFile() as a sequence of
// `export KEY="VALUE"` lines a shell can source directly.
func WriteEnvFile(layout *paths.Layout, env Env) error {
	var b strings.Builder
	fmt.Fprintf(&b, "export KUBECONFIG=%q\n", env.Kubeconfig)
	fmt.Fprintf(&b, "export PATH=%q\n", env.Path)
	fmt.Fprintf(&b, "export CONTAINER_RUNTIME_ENDPOINT=%q\n", env.ContainerRuntimeEndpoint)
	return os.WriteFile(layout.EnvFile(), []byte(b.String()), 0o644)
}

// Run starts shellPath in the foreground with cwd set to rootDir, sources
// the rendered environment file, and blocks until the shell exits or ctx is
// cancelled. It returns the shell's exit error, if any.
func Run(ctx context.Context, layout *paths.Layout, shellPath, rootDir string) error {
	cmd := exec.Command(shellPath)
	cmd.Dir = rootDir
	cmd.Env = os.Environ()

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return fmt.Errorf("start shell %s: %w", shellPath, err)
	}
	defer ptmx.Close()

	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	defer signal.Stop(winch)
	go func() {
		for range winch {
			if err := pty.InheritSize(os.Stdin, ptmx); err != nil {
				logrus.Debugf("resize shell pty: %v", err)
			}
		}
	}()
	winch <- syscall.SIGWINCH

	state, err := term.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		return fmt.Errorf("set raw terminal mode: %w", err)
	}
	defer func() { _ = term.Restore(int(os.Stdin.Fd()), state) }()

	source := fmt.Sprintf("source %q\n", layout.EnvFile())
	if _, err := ptmx.WriteString(source); err != nil {
		return fmt.Errorf("source environment in shell: %w", err)
	}

	done := make(chan error, 1)
	go func() { _, _ = io.Copy(ptmx, os.Stdin) }()
	go func() { _, _ = io.Copy(os.Stdout, ptmx) }()
	go func() { done <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		_ = cmd.Process.Signal(syscall.SIGHUP)
		<-done
		return context.Cause(ctx)
	case err := <-done:
		return err
	}
}
