// Package orchestrator drives the dependency-ordered start and reverse-order
// teardown of every kubernix component: it computes topological layers over
// each component's declared dependencies, starts a layer's members in
// parallel, and blocks until every member of a layer is Ready before moving
// on to the next.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/kubernix/kubernix/pkg/components"
	"github.com/kubernix/kubernix/pkg/kubernixerrors"
	"github.com/kubernix/kubernix/pkg/process"
	"github.com/kubernix/kubernix/pkg/rundescriptor"
)

// State is a supervised component's position in its lifecycle, per the
// state machine: New -> Spawning -> Ready -> Stopping -> {Stopped, Killed};
// Spawning -> Failed and Ready -> Exited are terminal and both trigger a
// full teardown.
type State int

const (
	StateNew State = iota
	StateSpawning
	StateReady
	StateStopping
	StateStopped
	StateKilled
	StateFailed
	StateExited
)

func (s State) String() string {
	switch s {
	case StateSpawning:
		return "spawning"
	case StateReady:
		return "ready"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateKilled:
		return "killed"
	case StateFailed:
		return "failed"
	case StateExited:
		return "exited"
	default:
		return "new"
	}
}

type instance struct {
	component components.Component
	proc      *process.Process
	state     State
	mu        sync.Mutex
}

func (i *instance) setState(s State) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.state = s
}

func (i *instance) getState() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// Orchestrator holds the dependency DAG and the running instance table for
// one bootstrap attempt.
type Orchestrator struct {
	runID     string
	instances map[string]*instance
	order     []string // start order, filled in as components successfully reach Ready
	mu        sync.Mutex
	exited    chan error
}

// New builds an Orchestrator over the given components, tagging every log
// line it emits with a fresh run ID so a single bootstrap's activity is
// grep-able in kubernix's own log. The components' own log files do not
// carry the run ID.
func New(comps []components.Component) *Orchestrator {
	instances := make(map[string]*instance, len(comps))
	for _, c := range comps {
		instances[c.Name()] = &instance{component: c, state: StateNew}
	}
	return &Orchestrator{
		runID:     uuid.NewString(),
		instances: instances,
		exited:    make(chan error, 1),
	}
}

// Exited reports the first unexpected exit of a Ready component. A caller
// that has handed off to an interactive shell should select on it
// alongside the shell's own completion so a supervised child dying under
// it aborts the session instead of leaving it stranded.
func (o *Orchestrator) Exited() <-chan error { return o.exited }

// Start runs the layered start algorithm: it computes topological layers,
// starts each layer's components in parallel, and fans their results in
// on a channel, short-circuiting the layer on the first failure. On any
// failure it cancels in-flight starts, tears down whatever had already
// reached Ready, and returns a *kubernixerrors.StartFailed.
func (o *Orchestrator) Start(ctx context.Context, bctx *components.BuildContext) error {
	layers, err := o.layers()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	for layerIdx, layer := range layers {
		logrus.Debugf("[%s] starting layer %d: %v", o.runID, layerIdx, names(layer))

		type result struct {
			name string
			err  error
		}
		results := make(chan result, len(layer))

		var wg sync.WaitGroup
		for _, inst := range layer {
			wg.Add(1)
			go func(inst *instance) {
				defer wg.Done()
				results <- result{inst.component.Name(), o.startOne(ctx, bctx, inst)}
			}(inst)
		}
		go func() {
			wg.Wait()
			close(results)
		}()

		var firstErr error
		var firstName string
		for r := range results {
			if r.err != nil && firstErr == nil {
				firstErr = r.err
				firstName = r.name
				cancel(firstErr)
			}
		}

		if firstErr != nil {
			logrus.Errorf("[%s] %s failed to start: %v", o.runID, firstName, firstErr)
			o.Teardown(context.Background())
			return &kubernixerrors.StartFailed{Component: firstName, Cause: firstErr}
		}
	}

	return nil
}

func (o *Orchestrator) startOne(ctx context.Context, bctx *components.BuildContext, inst *instance) error {
	inst.setState(StateSpawning)

	argv, err := inst.component.BuildArgv(bctx)
	if err != nil {
		inst.setState(StateFailed)
		return err
	}

	if argv.Path != "" {
		p := process.New(inst.component.Name(), argv.Path, argv.Args, inst.component.LogPath(bctx.Layout))
		if err := p.Spawn(); err != nil {
			inst.setState(StateFailed)
			return err
		}
		inst.mu.Lock()
		inst.proc = p
		inst.mu.Unlock()
	}

	probe := inst.component.ReadinessProbe(bctx, inst.proc)
	if err := probe(ctx); err != nil {
		inst.setState(StateFailed)
		return err
	}

	inst.setState(StateReady)
	o.mu.Lock()
	o.order = append(o.order, inst.component.Name())
	o.mu.Unlock()

	if argv.Path != "" {
		descriptor := rundescriptor.New(argv.Path, argv.Args, os.Environ())
		if err := descriptor.Write(inst.component.RunDescriptorPath(bctx.Layout)); err != nil {
			logrus.Warnf("[%s] %s: %v", o.runID, inst.component.Name(), err)
		}
		go o.watchExit(inst)
	}

	logrus.Infof("[%s] %s is ready", o.runID, inst.component.Name())
	return nil
}

// watchExit blocks until inst's process exits. If that happens while the
// instance is still Ready (i.e. nobody has already started tearing it
// down), it marks the instance Exited and reports it on o.exited so a
// caller waiting on an interactive shell can abort the session.
func (o *Orchestrator) watchExit(inst *instance) {
	<-inst.proc.Done()
	if inst.getState() != StateReady {
		return
	}
	inst.setState(StateExited)
	err := &kubernixerrors.ProcessExited{Component: inst.component.Name(), Code: inst.proc.ExitCode()}
	logrus.Errorf("[%s] %s exited unexpectedly: %v", o.runID, inst.component.Name(), err)
	select {
	case o.exited <- err:
	default:
	}
}

// Teardown stops every component that reached Ready, in the reverse of
// the order it was started, best-effort: every failure is collected and
// logged but never aborts the sequence.
func (o *Orchestrator) Teardown(ctx context.Context) []error {
	o.mu.Lock()
	order := append([]string(nil), o.order...)
	o.mu.Unlock()

	var combined error
	for i := len(order) - 1; i >= 0; i-- {
		name := order[i]
		inst := o.instances[name]
		inst.setState(StateStopping)

		if inst.proc != nil {
			if err := inst.proc.Stop(); err != nil {
				combined = multierr.Append(combined, &kubernixerrors.TeardownError{Component: name, Cause: err})
				inst.setState(StateKilled)
				continue
			}
		}
		inst.setState(StateStopped)
	}

	errs := multierr.Errors(combined)
	if len(errs) > 0 {
		logrus.Warnf("[%s] teardown finished with %d error(s)", o.runID, len(errs))
	} else {
		logrus.Infof("[%s] teardown complete", o.runID)
	}
	return errs
}

// Status returns every component's current lifecycle state.
func (o *Orchestrator) Status() map[string]State {
	out := make(map[string]State, len(o.instances))
	for name, inst := range o.instances {
		out[name] = inst.getState()
	}
	return out
}

func names(layer []*instance) []string {
	out := make([]string, len(layer))
	for i, inst := range layer {
		out[i] = inst.component.Name()
	}
	return out
}

// layers computes the topological layering of the dependency DAG using
// Kahn's algorithm: repeatedly peel off every node whose remaining
// in-degree is zero. Each peel is one layer, so members of a layer can
// start in parallel.
func (o *Orchestrator) layers() ([][]*instance, error) {
	inDegree := map[string]int{}
	dependents := map[string][]string{}

	for name, inst := range o.instances {
		if _, ok := inDegree[name]; !ok {
			inDegree[name] = 0
		}
		for _, dep := range inst.component.Dependencies() {
			if _, ok := o.instances[dep]; !ok {
				return nil, fmt.Errorf("component %q depends on unknown component %q", name, dep)
			}
			inDegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var layers [][]*instance
	remaining := len(inDegree)
	for remaining > 0 {
		var layerNames []string
		for name, deg := range inDegree {
			if deg == 0 {
				layerNames = append(layerNames, name)
			}
		}
		if len(layerNames) == 0 {
			return nil, fmt.Errorf("dependency cycle detected among remaining components")
		}
		sort.Strings(layerNames)

		layer := make([]*instance, len(layerNames))
		for i, name := range layerNames {
			layer[i] = o.instances[name]
			delete(inDegree, name)
			remaining--
		}
		for _, name := range layerNames {
			for _, dependent := range dependents[name] {
				inDegree[dependent]--
			}
		}
		layers = append(layers, layer)
	}

	return layers, nil
}
