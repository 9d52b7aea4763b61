// Package build drives a node graph to completion.
//
// A Manager walks the graph in dependency order. Each ready node is checked
// against the values file: when its signature (action, sources and the
// targets of its dependencies) and its targets are unchanged the node is
// cached, otherwise its action is submitted to the task manager. Progress
// is reported through the build events of the event manager.
package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"aqualid/internal/events"
	"aqualid/internal/tasks"
	"aqualid/internal/values"
)

// ValueStore persists node signatures. *values.ValuesFile implements it.
type ValueStore interface {
	Actual(vs []values.Value) bool
	AddValues(vs []values.Value) error
}

var _ ValueStore = (*values.ValuesFile)(nil)

// Option configures a Manager.
type Option func(*Manager)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithKeepGoing keeps building independent nodes after a failure. Without
// it the first failure stops the task manager.
func WithKeepGoing(on bool) Option {
	return func(m *Manager) { m.keepGoing = on }
}

// WithSignatureKind selects how source and target files are fingerprinted.
func WithSignatureKind(k values.SignatureKind) Option {
	return func(m *Manager) { m.kind = k }
}

// WithBaseDir resolves relative source and target paths against dir.
func WithBaseDir(dir string) Option {
	return func(m *Manager) { m.baseDir = dir }
}

// WithSignatureWorkers bounds how many nodes are fingerprinted at once.
func WithSignatureWorkers(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.sigWorkers = n
		}
	}
}

// Manager builds graphs. Build stops the task manager when it gives up
// early, so a task manager serves at most one failed or cancelled build.
type Manager struct {
	store  ValueStore
	tasks  *tasks.Manager
	events *events.Manager
	logger *slog.Logger

	keepGoing  bool
	kind       values.SignatureKind
	baseDir    string
	sigWorkers int
}

// NewManager returns a manager. The event manager may be nil; when set it
// must have the build events registered (see events.RegisterBuiltins).
func NewManager(store ValueStore, tm *tasks.Manager, em *events.Manager, opts ...Option) *Manager {
	m := &Manager{
		store:      store,
		tasks:      tm,
		events:     em,
		logger:     slog.Default(),
		sigWorkers: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type check struct {
	sig    values.Value
	actual bool
	phony  bool
	err    error
}

type run struct {
	m      *Manager
	g      *Graph
	ctx    context.Context
	logger *slog.Logger

	state    ExecutionState
	checks   map[string]check
	running  int
	stopping bool

	// rebuiltPhony holds nodes without targets that ran in this build.
	rebuiltPhony map[string]bool

	summary events.BuildSummary
	failed  []string
	skipped []string
}

// Build brings every node of g up to date. It returns a *FailedError when
// some node failed or was skipped, and ctx.Err() when ctx ended first.
func (m *Manager) Build(ctx context.Context, g *Graph) (events.BuildSummary, error) {
	start := time.Now()
	r := &run{
		m:            m,
		g:            g,
		ctx:          ctx,
		state:        g.InitialState(),
		checks:       make(map[string]check),
		rebuiltPhony: make(map[string]bool),
		summary:      events.BuildSummary{RunID: uuid.NewString()},
	}
	r.logger = m.logger.With(slog.String("run_id", r.summary.RunID))
	r.logger.Info("build started", slog.Int("nodes", g.Len()))

	r.loop()
	r.skipRemaining()

	r.summary.Duration = time.Since(start)
	r.emit(events.EventBuildFinished, r.summary)
	if m.events != nil {
		m.events.Finish()
	}

	if err := ctx.Err(); err != nil {
		return r.summary, err
	}
	if len(r.failed) > 0 || len(r.skipped) > 0 {
		return r.summary, &FailedError{Failed: r.failed, Skipped: r.skipped}
	}
	return r.summary, nil
}

func (r *run) emit(name string, args ...any) {
	if r.m.events != nil {
		r.m.events.Emit(name, args...)
	}
}

func (r *run) loop() {
	for {
		if !r.stopping && r.ctx.Err() != nil {
			r.logger.Info("build cancelled")
			r.stop()
		}

		if !r.stopping {
			if ready := ReadyNodes(r.g, r.state); len(ready) > 0 {
				r.schedule(ready)
				continue
			}
		}
		if r.running == 0 {
			return
		}

		wctx := r.ctx
		if r.stopping {
			wctx = context.Background()
		}
		results, err := r.m.tasks.WaitCompleted(wctx)
		if err != nil {
			continue
		}
		if len(results) == 0 {
			// The task manager dropped the remaining queued tasks.
			r.abandonRunning()
			return
		}
		for _, res := range results {
			r.harvest(res)
		}
	}
}

func (r *run) stop() {
	if r.stopping {
		return
	}
	r.stopping = true
	r.m.tasks.Stop()
}

// schedule checks the ready nodes and either caches or submits them. Every
// node leaves the pending state.
func (r *run) schedule(ready []string) {
	checks, err := r.m.checkNodes(r.ctx, r.g, ready, r.forced(ready))
	if err != nil {
		r.stop()
		return
	}

	for i, name := range ready {
		c := checks[i]
		if c.err != nil {
			r.fail(name, c.err)
			continue
		}
		if c.actual {
			_ = Transition(r.state, name, NodePending, NodeCached)
			r.summary.Cached++
			r.emit(events.EventNodeActual, name)
			continue
		}

		r.emit(events.EventNodeOutdated, name)
		if r.stopping {
			continue
		}
		if err := r.submit(name, c); err != nil {
			r.logger.Debug("node not submitted", slog.String("node", name), slog.String("error", err.Error()))
			r.stop()
		}
	}
}

// forced reports the nodes that depend on a node without targets that was
// rebuilt in this build.
func (r *run) forced(names []string) map[string]bool {
	out := make(map[string]bool)
	for _, name := range names {
		for _, d := range r.g.Deps(name) {
			if r.rebuiltPhony[d] {
				out[name] = true
				break
			}
		}
	}
	return out
}

func (r *run) submit(name string, c check) error {
	n, _ := r.g.Node(name)
	depth, _ := r.g.Depth(name)

	if err := Transition(r.state, name, NodePending, NodeRunning); err != nil {
		return err
	}
	r.checks[name] = c
	r.emit(events.EventNodeBuilding, name)

	err := r.m.tasks.AddTaskPriority(depth, name, func() error {
		if n.Action != nil {
			if err := n.Action.Run(r.ctx); err != nil {
				return err
			}
		}
		return r.m.record(n, c.sig)
	})
	if err != nil {
		_ = Transition(r.state, name, NodeRunning, NodeSkipped)
		r.skipped = append(r.skipped, name)
		r.summary.Skipped++
		r.emit(events.EventNodeSkipped, name)
		return err
	}
	r.running++
	return nil
}

func (r *run) harvest(res tasks.Result) {
	name, ok := res.ID.(string)
	if !ok || r.state[name] != NodeRunning {
		return
	}
	r.running--

	if res.Err != nil {
		r.fail(name, res.Err)
		return
	}
	_ = Transition(r.state, name, NodeRunning, NodeBuilt)
	r.summary.Built++
	if r.checks[name].phony {
		r.rebuiltPhony[name] = true
	}
	r.emit(events.EventNodeBuilt, name)
}

func (r *run) fail(name string, err error) {
	var ne *NodeError
	if !errors.As(err, &ne) {
		err = &NodeError{Node: name, Err: err}
	}

	skipped, perr := FailAndPropagate(r.g, r.state, name)
	if perr != nil {
		r.logger.Error("failure propagation", slog.String("node", name), slog.String("error", perr.Error()))
	}
	r.failed = append(r.failed, name)
	r.summary.Failed++
	r.emit(events.EventNodeFailed, name, err)

	for _, s := range skipped {
		r.skipped = append(r.skipped, s)
		r.summary.Skipped++
		r.emit(events.EventNodeSkipped, s)
	}

	if !r.m.keepGoing {
		r.stop()
	}
}

// abandonRunning skips nodes whose tasks were discarded.
func (r *run) abandonRunning() {
	for _, n := range r.g.nodes {
		if r.state[n.Name] == NodeRunning {
			_ = Transition(r.state, n.Name, NodeRunning, NodeSkipped)
			r.skipped = append(r.skipped, n.Name)
			r.summary.Skipped++
			r.emit(events.EventNodeSkipped, n.Name)
		}
	}
	r.running = 0
}

func (r *run) skipRemaining() {
	for _, n := range r.g.nodes {
		if r.state[n.Name] == NodePending {
			_ = Transition(r.state, n.Name, NodePending, NodeSkipped)
			r.skipped = append(r.skipped, n.Name)
			r.summary.Skipped++
			r.emit(events.EventNodeSkipped, n.Name)
		}
	}
}

// checkNodes fingerprints names in parallel.
func (m *Manager) checkNodes(ctx context.Context, g *Graph, names []string, forced map[string]bool) ([]check, error) {
	out := make([]check, len(names))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(m.sigWorkers)
	for i, name := range names {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out[i] = m.checkNode(g, name, forced[name])
			return nil
		})
	}
	return out, eg.Wait()
}

func (m *Manager) checkNode(g *Graph, name string, forced bool) check {
	n, _ := g.Node(name)
	sig, err := m.signature(g, n)
	if err != nil {
		return check{err: err}
	}
	c := check{sig: sig, phony: len(n.Targets) == 0}
	if c.phony || forced {
		return c
	}

	targets, err := m.targetValues(n)
	if err != nil {
		return check{err: err}
	}
	c.actual = m.store.Actual(append([]values.Value{sig}, targets...))
	return c
}

// signature fingerprints the node's action, its sources and the targets of
// its dependencies.
func (m *Manager) signature(g *Graph, n Node) (values.Value, error) {
	d := newDigest()
	d.field(n.Name)
	if s, ok := n.Action.(Signer); ok {
		d.field(s.Signature())
	} else {
		d.field("")
	}

	sources, err := ExpandSources(m.baseDir, n.Sources)
	if err != nil {
		return nil, err
	}
	if err := m.fileFields(d, sources); err != nil {
		return nil, err
	}

	var depTargets []string
	for _, dep := range g.Deps(n.Name) {
		dn, _ := g.Node(dep)
		for _, t := range dn.Targets {
			depTargets = append(depTargets, resolvePath(m.baseDir, t))
		}
	}
	if err := m.fileFields(d, depTargets); err != nil {
		return nil, err
	}

	return values.NewStringValue(values.CompositeName(n.Name, "signature"), d.sum()), nil
}

func (m *Manager) fileFields(d *digest, paths []string) error {
	fs := make([]string, 0, 2*len(paths))
	for _, p := range paths {
		c, err := values.FileSignature(p, m.kind)
		if err != nil {
			return err
		}
		fs = append(fs, p, c.String())
	}
	d.fields(fs)
	return nil
}

func (m *Manager) targetValues(n Node) ([]values.Value, error) {
	out := make([]values.Value, 0, len(n.Targets))
	for _, t := range n.Targets {
		v, err := values.NewFileValue(resolvePath(m.baseDir, t), m.kind)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// record stores the signature and the fresh target values of a built node.
func (m *Manager) record(n Node, sig values.Value) error {
	if len(n.Targets) == 0 {
		return nil
	}
	targets, err := m.targetValues(n)
	if err != nil {
		return err
	}
	for _, t := range targets {
		if !t.Exists() {
			return fmt.Errorf("%w: %s", ErrTargetMissing, t.Name())
		}
	}
	return m.store.AddValues(append(targets, sig))
}
