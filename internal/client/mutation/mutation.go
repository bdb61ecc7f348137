// Package mutation runs store writes one at a time per form and invalidates
// the cached reads they affect once they succeed.
package mutation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophblog/internal/client/query"
	"github.com/dmitrijs2005/gophblog/internal/logging"
)

var (
	// ErrPending is returned by Execute while a previous call has not finished.
	ErrPending = errors.New("already in progress")
	// ErrPanicked is the state error left by a write that panicked.
	ErrPanicked = errors.New("write panicked")
)

type Phase int

const (
	Idle Phase = iota
	Pending
	Succeeded
	Failed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// State is the outcome of the latest Execute. Value is set only when
// Succeeded, Err only when Failed.
type State[Out any] struct {
	Phase Phase
	value Out
	err   error
}

func (s State[Out]) IsPending() bool { return s.Phase == Pending }
func (s State[Out]) Err() error      { return s.err }
func (s State[Out]) Value() Out      { return s.value }

type Options[In, Out any] struct {
	// Name prefixes errors and log lines, e.g. "create post".
	Name string
	Fn   func(ctx context.Context, in In) (Out, error)
	// Affects lists the cached reads a successful write makes outdated. The
	// same keys are locked while the write runs.
	Affects func(in In) []query.Key
	Logger  logging.Logger
}

// Mutation wraps one kind of write.
type Mutation[In, Out any] struct {
	cache *query.Cache
	opts  Options[In, Out]

	mu    sync.Mutex
	state State[Out]
}

func New[In, Out any](cache *query.Cache, opts Options[In, Out]) *Mutation[In, Out] {
	if opts.Logger == nil {
		opts.Logger = logging.NopLogger{}
	}
	if opts.Affects == nil {
		opts.Affects = func(In) []query.Key { return nil }
	}
	return &Mutation[In, Out]{cache: cache, opts: opts}
}

func (m *Mutation[In, Out]) State() State[Out] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Reset forgets the last outcome. A pending mutation is left alone.
func (m *Mutation[In, Out]) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Phase != Pending {
		m.state = State[Out]{}
	}
}

// Execute calls Fn exactly once unless another call is still pending, in
// which case it returns ErrPending without calling Fn. Affected keys are
// invalidated only after Fn succeeds. If ctx ends while waiting for the key
// locks, Fn is not called. A panic in Fn leaves the mutation Failed and is
// passed on.
func (m *Mutation[In, Out]) Execute(ctx context.Context, in In) (Out, error) {
	var zero Out

	m.mu.Lock()
	if m.state.Phase == Pending {
		m.mu.Unlock()
		return zero, fmt.Errorf("%s: %w", m.opts.Name, ErrPending)
	}
	m.state = State[Out]{Phase: Pending}
	m.mu.Unlock()

	done := false
	defer func() {
		if !done {
			m.setState(State[Out]{Phase: Failed, err: fmt.Errorf("%s: %w", m.opts.Name, ErrPanicked)})
		}
	}()

	keys := m.opts.Affects(in)
	started := time.Now()
	out, err := m.run(ctx, in, keys)
	done = true

	if err != nil {
		m.setState(State[Out]{Phase: Failed, err: err})
		m.opts.Logger.Warn(ctx, "mutation failed", "mutation", m.opts.Name, "error", err)
		return zero, err
	}
	m.setState(State[Out]{Phase: Succeeded, value: out})
	m.opts.Logger.Debug(ctx, "mutation succeeded", "mutation", m.opts.Name,
		"invalidated", len(keys), "elapsed", time.Since(started))
	return out, nil
}

func (m *Mutation[In, Out]) run(ctx context.Context, in In, keys []query.Key) (Out, error) {
	unlock, err := m.cache.Lock(ctx, keys...)
	if err != nil {
		var zero Out
		return zero, fmt.Errorf("%s: %w", m.opts.Name, err)
	}
	defer unlock()

	out, err := m.opts.Fn(ctx, in)
	if err == nil {
		m.cache.Invalidate(keys...)
	}
	return out, err
}

func (m *Mutation[In, Out]) setState(s State[Out]) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}
