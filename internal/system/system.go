package system

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vk/componentry/internal/config"
	"github.com/vk/componentry/internal/ctxlog"
	"github.com/vk/componentry/internal/errs"
	"github.com/vk/componentry/internal/metric"
	"github.com/vk/componentry/internal/registry"
)

// State is the lifecycle state of a System.
type State int32

const (
	Unconfigured State = iota
	Starting
	Resetting
	Configured
	Error
)

func (s State) String() string {
	switch s {
	case Unconfigured:
		return "unconfigured"
	case Starting:
		return "starting"
	case Resetting:
		return "resetting"
	case Configured:
		return "configured"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// busy reports whether a load is running.
func (s State) busy() bool { return s == Starting || s == Resetting }

// Env is the published configuration and registry pair.
type Env struct {
	Config   *config.Config
	Registry *registry.Registry
}

// Loader builds a fresh configuration and a loaded registry.
type Loader func(ctx context.Context) (*config.Config, *registry.Registry, error)

// Option configures a System.
type Option func(*System)

// WithMetrics reports state transitions to m.
func WithMetrics(m *metric.Metrics) Option {
	return func(s *System) { s.metrics = m }
}

// System serialises configuration loads. The zero value is not usable; call
// New.
type System struct {
	loader  Loader
	metrics *metric.Metrics

	mu      sync.Mutex
	cond    *sync.Cond
	state   State
	err     error
	waiting int

	env atomic.Pointer[Env]
}

// New creates an unconfigured System.
func New(loader Loader, opts ...Option) *System {
	s := &System{loader: loader}
	s.cond = sync.NewCond(&s.mu)
	for _, opt := range opts {
		opt(s)
	}
	s.metrics.SetSystemState(int(Unconfigured))
	return s
}

// Init returns the published Env, loading it first when the system is
// unconfigured or in error. Callers arriving during a load wait for it; if
// that load fails they get an ErrInternal error and do not retry.
func (s *System) Init(ctx context.Context) (*Env, error) {
	s.mu.Lock()
	switch {
	case s.state.busy():
		return s.wait(ctx, "system.Init")
	case s.state == Configured:
		env := s.env.Load()
		s.mu.Unlock()
		return env, nil
	case s.state == Error:
		return s.run(ctx, Resetting)
	default:
		return s.run(ctx, Starting)
	}
}

// Reset reloads the configuration and builds a new registry. The previously
// published Env is left untouched for callers still holding it.
func (s *System) Reset(ctx context.Context) (*Env, error) {
	s.mu.Lock()
	if s.state.busy() {
		return s.wait(ctx, "system.Reset")
	}
	return s.run(ctx, Resetting)
}

// State returns the current state.
func (s *System) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Env returns the published Env, or nil when the system is not configured.
func (s *System) Env() *Env { return s.env.Load() }

// Registry returns the published registry, or nil.
func (s *System) Registry() *registry.Registry {
	if env := s.env.Load(); env != nil {
		return env.Registry
	}
	return nil
}

// Config returns the published configuration, or nil.
func (s *System) Config() *config.Config {
	if env := s.env.Load(); env != nil {
		return env.Config
	}
	return nil
}

// wait blocks until the running load finishes. It must be called with mu
// held and releases it.
func (s *System) wait(ctx context.Context, op string) (*Env, error) {
	defer s.mu.Unlock()
	ctxlog.FromContext(ctx).Debug("Waiting for configuration load.", "state", s.state)
	s.waiting++
	for s.state.busy() {
		s.cond.Wait()
	}
	s.waiting--
	if s.state == Error {
		return nil, errs.NewInternal(op, s.err)
	}
	return s.env.Load(), nil
}

// run drives a load. It must be called with mu held and releases it.
func (s *System) run(ctx context.Context, next State) (*Env, error) {
	logger := ctxlog.FromContext(ctx)
	s.setState(next)
	s.mu.Unlock()

	start := time.Now()
	env, err := s.load(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.cond.Broadcast()
	if err != nil {
		s.err = err
		s.env.Store(nil)
		s.setState(Error)
		logger.Error("System configuration failed.", "error", err, "waiting", s.waiting)
		return nil, err
	}
	s.err = nil
	s.env.Store(env)
	s.setState(Configured)
	logger.Info("System configured.", "registry", env.Registry.ID().String(), "duration", time.Since(start))
	return env, nil
}

func (s *System) load(ctx context.Context) (env *Env, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.NewInternal("system.load", fmt.Errorf("configuration load panicked: %v", r))
		}
	}()
	cfg, reg, err := s.loader(ctx)
	if err != nil {
		return nil, err
	}
	if reg == nil {
		return nil, errs.NewInternal("system.load", fmt.Errorf("loader returned no registry"))
	}
	return &Env{Config: cfg, Registry: reg}, nil
}

func (s *System) setState(st State) {
	s.state = st
	s.metrics.SetSystemState(int(st))
}
