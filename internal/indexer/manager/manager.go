// Package manager owns the lifecycle of one runtime index: load a snapshot
// if a valid one exists, otherwise build the index from the corpus, and
// publish it once it is complete.
//
// States move none -> building -> ready, or back to none when a build is
// cancelled or fails. Concurrent callers of EnsureReady share one in-flight
// attempt. The published value is never mutated after it becomes ready.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	apperrors "github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/errors"
)

type State string

const (
	StateNone     State = "none"
	StateBuilding State = "building"
	StateReady    State = "ready"
)

// Origin records where a ready index came from.
type Origin string

const (
	OriginSnapshot Origin = "snapshot"
	OriginBuild    Origin = "build"
)

// LoadFunc reads a prebuilt snapshot. Errors satisfying
// apperrors.IsSnapshotUnusable cause a rebuild; any other error fails the
// attempt.
type LoadFunc[T any] func(ctx context.Context) (T, error)

// BuildFunc constructs the index from the corpus and must honour ctx
// cancellation between units of work.
type BuildFunc[T any] func(ctx context.Context) (T, error)

// Transition is reported to the observer on every state change.
type Transition struct {
	Index    string
	BuildID  string
	From, To State
	Origin   Origin
	Err      error
	Elapsed  time.Duration
}

// Status is a read-only view of a manager.
type Status struct {
	Index   string    `json:"index"`
	State   State     `json:"state"`
	Origin  Origin    `json:"origin,omitempty"`
	BuildID string    `json:"buildId,omitempty"`
	ReadyAt time.Time `json:"readyAt,omitzero"`
	LastErr string    `json:"lastError,omitempty"`
}

type Manager[T any] struct {
	name  string
	load  LoadFunc[T]
	build BuildFunc[T]

	group    singleflight.Group
	observer func(Transition)
	logger   *slog.Logger

	mu       sync.Mutex
	state    State
	value    T
	origin   Origin
	buildID  string
	readyAt  time.Time
	lastErr  error
	cancel   context.CancelFunc
	canceled bool
}

type Option[T any] func(*Manager[T])

// WithObserver registers fn to receive state transitions. fn runs with no
// locks held.
func WithObserver[T any](fn func(Transition)) Option[T] {
	return func(m *Manager[T]) { m.observer = fn }
}

// New returns a manager in state none. load may be nil when the index has
// no snapshot form.
func New[T any](name string, load LoadFunc[T], build BuildFunc[T], opts ...Option[T]) *Manager[T] {
	m := &Manager[T]{
		name:   name,
		load:   load,
		build:  build,
		state:  StateNone,
		logger: slog.Default().With("component", "index-manager", "index", name),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager[T]) Name() string { return m.name }

// Status reports the current state without changing it.
func (m *Manager[T]) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Status{
		Index:   m.name,
		State:   m.state,
		Origin:  m.origin,
		BuildID: m.buildID,
		ReadyAt: m.readyAt,
	}
	if m.lastErr != nil {
		s.LastErr = m.lastErr.Error()
	}
	return s
}

func (m *Manager[T]) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Ready returns the index if it is ready, without waiting or starting work.
func (m *Manager[T]) Ready() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateReady {
		var zero T
		return zero, false
	}
	return m.value, true
}

// EnsureReady returns the ready index, joining an in-flight attempt or
// starting one. Cancelling ctx abandons the wait but not the attempt.
// Waiters of an attempt that was cancelled through Cancel receive
// ErrBuildCancelled.
func (m *Manager[T]) EnsureReady(ctx context.Context) (T, error) {
	if v, ok := m.Ready(); ok {
		return v, nil
	}
	ch := m.group.DoChan("ready", func() (any, error) {
		return m.run()
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			var zero T
			return zero, res.Err
		}
		return res.Val.(T), nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Start begins an attempt in the background if the index is not ready and
// no attempt is in flight.
func (m *Manager[T]) Start() {
	if m.State() != StateNone {
		return
	}
	go func() {
		if _, err := m.EnsureReady(context.Background()); err != nil && !errors.Is(err, apperrors.ErrBuildCancelled) {
			m.logger.Error("background index build failed", "error", err)
		}
	}()
}

// Cancel stops an in-flight build. It is a no-op unless the state is
// building, so repeated calls and calls after completion do nothing.
func (m *Manager[T]) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateBuilding || m.cancel == nil {
		return
	}
	m.canceled = true
	m.cancel()
	m.logger.Info("index build cancellation requested", "build_id", m.buildID)
}

// run performs one attempt. Only one run executes at a time because every
// caller goes through the singleflight group.
func (m *Manager[T]) run() (T, error) {
	var zero T
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.mu.Lock()
	if m.state == StateReady {
		v := m.value
		m.mu.Unlock()
		return v, nil
	}
	buildID := uuid.NewString()
	m.state = StateBuilding
	m.buildID = buildID
	m.cancel = cancel
	m.canceled = false
	m.mu.Unlock()

	start := time.Now()
	m.notify(Transition{Index: m.name, BuildID: buildID, From: StateNone, To: StateBuilding})

	value, origin, err := m.obtain(ctx, buildID)

	m.mu.Lock()
	canceled := m.canceled
	m.cancel = nil
	if err != nil {
		m.state = StateNone
		if canceled && errors.Is(err, context.Canceled) {
			err = fmt.Errorf("%s index: %w", m.name, apperrors.ErrBuildCancelled)
		}
		m.lastErr = err
		m.mu.Unlock()

		if errors.Is(err, apperrors.ErrBuildCancelled) {
			m.logger.Info("index build cancelled", "build_id", buildID, "elapsed", time.Since(start))
		} else {
			m.logger.Error("index build failed", "build_id", buildID, "error", err)
		}
		m.notify(Transition{Index: m.name, BuildID: buildID, From: StateBuilding, To: StateNone, Origin: origin, Err: err, Elapsed: time.Since(start)})
		return zero, err
	}
	m.state = StateReady
	m.value = value
	m.origin = origin
	m.readyAt = time.Now()
	m.lastErr = nil
	m.mu.Unlock()

	m.logger.Info("index ready", "build_id", buildID, "origin", origin, "elapsed", time.Since(start))
	m.notify(Transition{Index: m.name, BuildID: buildID, From: StateBuilding, To: StateReady, Origin: origin, Elapsed: time.Since(start)})
	return value, nil
}

func (m *Manager[T]) obtain(ctx context.Context, buildID string) (T, Origin, error) {
	if m.load != nil {
		v, err := m.load(ctx)
		if err == nil {
			return v, OriginSnapshot, nil
		}
		if !apperrors.IsSnapshotUnusable(err) {
			var zero T
			return zero, OriginSnapshot, fmt.Errorf("loading %s snapshot: %w", m.name, err)
		}
		m.logger.Info("snapshot unusable, rebuilding from corpus", "build_id", buildID, "reason", err)
	}
	if err := ctx.Err(); err != nil {
		var zero T
		return zero, OriginBuild, err
	}
	v, err := m.build(ctx)
	return v, OriginBuild, err
}

func (m *Manager[T]) notify(t Transition) {
	if m.observer != nil {
		m.observer(t)
	}
}
