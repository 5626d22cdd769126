// Package process supervises the long-running component binaries kubernix
// spawns: etcd, kube-apiserver, kube-controller-manager, kube-scheduler,
// crio, kubelet and kube-proxy. Each is started with its stdout
// and stderr redirected to a log file, watched by a goroutine that
// reports an unexpected exit, and can be asked to block until a
// readiness pattern appears in its own log output.
package process

import (
	"bufio"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kubernix/kubernix/pkg/kubernixerrors"
)

// DefaultReadyTimeout bounds how long WaitReady will scan a process's log
// output for its readiness pattern before giving up and killing it.
const DefaultReadyTimeout = 60 * time.Second

// DefaultStopTimeout bounds how long Stop waits for SIGTERM to be
// honored before escalating to SIGKILL.
const DefaultStopTimeout = 15 * time.Second

// Option configures a Process at construction time.
type Option func(*Process)

// WithEnv appends extra environment variables (in addition to the
// current process's environment) to the child.
func WithEnv(env []string) Option {
	return func(p *Process) { p.env = env }
}

// WithReadyTimeout overrides DefaultReadyTimeout.
func WithReadyTimeout(d time.Duration) Option {
	return func(p *Process) { p.readyTimeout = d }
}

// WithStopTimeout overrides DefaultStopTimeout.
func WithStopTimeout(d time.Duration) Option {
	return func(p *Process) { p.stopTimeout = d }
}

// Process supervises one spawned binary.
type Process struct {
	name         string
	binPath      string
	args         []string
	env          []string
	logPath      string
	readyTimeout time.Duration
	stopTimeout  time.Duration

	cmd     *exec.Cmd
	logFile *os.File
	exited  chan error
	doneCh  chan struct{}
	exitErr error

	stopOnce sync.Once
	stopErr  error
}

// New builds a Process whose stdout and stderr will be appended to logPath
// once started. The process is not spawned until Spawn is called.
func New(name, binPath string, args []string, logPath string, opts ...Option) *Process {
	p := &Process{
		name:         name,
		binPath:      binPath,
		args:         args,
		logPath:      logPath,
		readyTimeout: DefaultReadyTimeout,
		stopTimeout:  DefaultStopTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the component name this process was constructed for.
func (p *Process) Name() string { return p.name }

// Args returns the resolved argv the process was (or will be) started
// with, excluding the binary path itself.
func (p *Process) Args() []string { return append([]string(nil), p.args...) }

// BinPath returns the resolved executable path.
func (p *Process) BinPath() string { return p.binPath }

// Spawn starts the child process. It returns once the process has been
// forked; it does not wait for readiness.
func (p *Process) Spawn() error {
	logFile, err := os.OpenFile(p.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return &kubernixerrors.ProcessSpawnError{Component: p.name, Argv: append([]string{p.binPath}, p.args...), Cause: err}
	}
	p.logFile = logFile

	cmd := exec.Command(p.binPath, p.args...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	if len(p.env) > 0 {
		cmd.Env = append(os.Environ(), p.env...)
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return &kubernixerrors.ProcessSpawnError{Component: p.name, Argv: append([]string{p.binPath}, p.args...), Cause: err}
	}
	p.cmd = cmd

	p.exited = make(chan error, 1)
	p.doneCh = make(chan struct{})
	go func() {
		err := cmd.Wait()
		p.exited <- err
		p.exitErr = err
		close(p.doneCh)
	}()

	logrus.Debugf("started %s (pid %d), logging to %s", p.name, cmd.Process.Pid, p.logPath)
	return nil
}

// Done returns a channel that closes once the process has exited. It is
// safe to read after Spawn returns even if the process is still running:
// the channel simply blocks until then.
func (p *Process) Done() <-chan struct{} { return p.doneCh }

// ExitCode returns the process's exit code once Done has closed. Its
// result before that point is meaningless.
func (p *Process) ExitCode() int { return exitCode(p.exitErr) }

// PID returns the spawned process's PID, or 0 if it has not been started.
func (p *Process) PID() int {
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// WaitReady blocks until pattern appears in a line of the process's log
// output, ctx is cancelled, the readiness timeout elapses, or the
// process exits first. The log file is read from its beginning, so lines
// already in it before Spawn (the file is opened for append) are
// considered too.
func (p *Process) WaitReady(ctx context.Context, pattern string) error {
	ctx, cancel := context.WithTimeout(ctx, p.readyTimeout)
	defer cancel()

	f, err := os.Open(p.logPath)
	if err != nil {
		return &kubernixerrors.ReadyTimeout{Component: p.name, Timeout: p.readyTimeout.String()}
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	var line string
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		for {
			chunk, err := reader.ReadString('\n')
			line += chunk
			if strings.Contains(line, pattern) {
				return nil
			}
			if err != nil {
				break
			}
			line = ""
		}

		select {
		case err := <-p.exited:
			p.exited <- err
			code := exitCode(err)
			return &kubernixerrors.ProcessExited{Component: p.name, Code: code}
		case <-ctx.Done():
			_ = p.Stop()
			return &kubernixerrors.ReadyTimeout{Component: p.name, Timeout: p.readyTimeout.String()}
		case <-ticker.C:
		}
	}
}

// WaitForPattern blocks until pattern appears in a line of the file at
// logPath, ctx is cancelled, or timeout elapses. Unlike (*Process).WaitReady
// it does not supervise a process: it is used by components that are
// ready-checked by tailing a log file that something else writes to (or
// that this same process already started via Spawn under a different
// handle).
func WaitForPattern(ctx context.Context, logPath, pattern string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		f, err := os.Open(logPath)
		if err == nil {
			scanner := bufio.NewScanner(f)
			for scanner.Scan() {
				if strings.Contains(scanner.Text(), pattern) {
					f.Close()
					return nil
				}
			}
			f.Close()
		}

		select {
		case <-ctx.Done():
			return &kubernixerrors.ReadyTimeout{Component: logPath, Timeout: timeout.String()}
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// Status is the coarse lifecycle state of a supervised Process.
type Status int

const (
	StatusNotStarted Status = iota
	StatusRunning
	StatusExited
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusExited:
		return "exited"
	default:
		return "not-started"
	}
}

// Status reports the process's current lifecycle state.
func (p *Process) Status() Status {
	if p.cmd == nil {
		return StatusNotStarted
	}
	select {
	case err := <-p.exited:
		p.exited <- err
		return StatusExited
	default:
		return StatusRunning
	}
}

// Running reports whether the process is still believed to be alive: it
// has been started and has not yet reported an exit.
func (p *Process) Running() bool {
	return p.Status() == StatusRunning
}

// Stop sends SIGTERM to the process group and waits up to stopTimeout
// for it to exit, escalating to SIGKILL if it does not. It is safe to
// call more than once on the same Process: the second and later calls
// return the first call's result immediately instead of re-signaling an
// already-reaped process or blocking forever waiting for a second exit
// that will never come.
func (p *Process) Stop() error {
	p.stopOnce.Do(func() {
		p.stopErr = p.stop()
	})
	return p.stopErr
}

func (p *Process) stop() error {
	if p.cmd == nil || p.cmd.Process == nil {
		return nil
	}
	defer func() {
		if p.logFile != nil {
			p.logFile.Close()
		}
	}()

	pgid, err := syscall.Getpgid(p.cmd.Process.Pid)
	if err != nil {
		pgid = p.cmd.Process.Pid
	}

	if err := syscall.Kill(-pgid, syscall.SIGTERM); err != nil && err != syscall.ESRCH {
		return &kubernixerrors.ProcessSpawnError{Component: p.name, Argv: append([]string{p.binPath}, p.args...), Cause: err}
	}

	select {
	case <-p.doneCh:
		logrus.Debugf("%s stopped", p.name)
		return nil
	case <-time.After(p.stopTimeout):
		logrus.Warnf("%s did not exit within %s, sending SIGKILL", p.name, p.stopTimeout)
		if err := syscall.Kill(-pgid, syscall.SIGKILL); err != nil && err != syscall.ESRCH {
			return &kubernixerrors.ProcessSpawnError{Component: p.name, Argv: append([]string{p.binPath}, p.args...), Cause: err}
		}
		<-p.doneCh
		return nil
	}
}
