package manager

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/errors"
)

func TestConcurrentCallersShareOneBuild(t *testing.T) {
	var builds atomic.Int32
	release := make(chan struct{})
	m := New("test", nil, func(ctx context.Context) (int, error) {
		builds.Add(1)
		<-release
		return 42, nil
	})

	var wg sync.WaitGroup
	results := make([]int, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := m.EnsureReady(context.Background())
			assert.NoError(t, err)
			results[i] = v
		}()
	}
	require.Eventually(t, func() bool { return m.State() == StateBuilding }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), builds.Load())
	for _, v := range results {
		assert.Equal(t, 42, v)
	}
	st := m.Status()
	assert.Equal(t, StateReady, st.State)
	assert.Equal(t, OriginBuild, st.Origin)
	assert.NotEmpty(t, st.BuildID)

	_, err := m.EnsureReady(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), builds.Load(), "a ready index is never rebuilt")
}

func TestSnapshotIsPreferred(t *testing.T) {
	built := false
	m := New("test",
		func(ctx context.Context) (string, error) { return "snapshot", nil },
		func(ctx context.Context) (string, error) {
			built = true
			return "built", nil
		},
	)
	v, err := m.EnsureReady(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "snapshot", v)
	assert.False(t, built)
	assert.Equal(t, OriginSnapshot, m.Status().Origin)
}

func TestUnusableSnapshotTriggersRebuild(t *testing.T) {
	for _, loadErr := range []error{apperrors.ErrSnapshotMissing, apperrors.ErrSnapshotInvalid} {
		m := New("test",
			func(ctx context.Context) (string, error) { return "", loadErr },
			func(ctx context.Context) (string, error) { return "built", nil },
		)
		v, err := m.EnsureReady(context.Background())
		require.NoError(t, err, loadErr)
		assert.Equal(t, "built", v)
		assert.Equal(t, OriginBuild, m.Status().Origin)
	}
}

func TestLoadFailureLeavesStateNone(t *testing.T) {
	boom := errors.New("permission denied")
	m := New("test",
		func(ctx context.Context) (string, error) { return "", boom },
		func(ctx context.Context) (string, error) { return "built", nil },
	)
	_, err := m.EnsureReady(context.Background())
	assert.ErrorIs(t, err, boom)
	st := m.Status()
	assert.Equal(t, StateNone, st.State)
	assert.Contains(t, st.LastErr, "permission denied")
}

func TestStatusDoesNotStartWork(t *testing.T) {
	var builds atomic.Int32
	m := New("test", nil, func(ctx context.Context) (int, error) {
		builds.Add(1)
		return 1, nil
	})
	assert.Equal(t, StateNone, m.Status().State)
	_, ok := m.Ready()
	assert.False(t, ok)
	assert.Equal(t, int32(0), builds.Load())
}

func TestCancelResetsToNoneAndIsIdempotent(t *testing.T) {
	started := make(chan struct{})
	var attempts atomic.Int32
	m := New("test", nil, func(ctx context.Context) (int, error) {
		if attempts.Add(1) == 1 {
			close(started)
			<-ctx.Done()
			return 0, ctx.Err()
		}
		return 7, nil
	})

	errc := make(chan error, 1)
	go func() {
		_, err := m.EnsureReady(context.Background())
		errc <- err
	}()
	<-started
	m.Cancel()
	m.Cancel()

	err := <-errc
	assert.ErrorIs(t, err, apperrors.ErrBuildCancelled)
	assert.Equal(t, StateNone, m.State())
	m.Cancel()

	v, err := m.EnsureReady(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	m.Cancel()
	assert.Equal(t, StateReady, m.State(), "cancel never affects a ready index")
}

func TestCallerContextOnlyAbandonsWait(t *testing.T) {
	release := make(chan struct{})
	m := New("test", nil, func(ctx context.Context) (int, error) {
		<-release
		return 3, nil
	})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := m.EnsureReady(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateBuilding, m.State())

	close(release)
	v, err := m.EnsureReady(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestObserverSeesTransitions(t *testing.T) {
	var mu sync.Mutex
	var seen []Transition
	m := New("search", nil,
		func(ctx context.Context) (int, error) { return 1, nil },
		WithObserver[int](func(tr Transition) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, tr)
		}),
	)
	_, err := m.EnsureReady(context.Background())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
	assert.Equal(t, StateBuilding, seen[0].To)
	assert.Equal(t, StateReady, seen[1].To)
	assert.Equal(t, "search", seen[1].Index)
	assert.Equal(t, seen[0].BuildID, seen[1].BuildID)
}
