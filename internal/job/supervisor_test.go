package job

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// TestTryStartRejectsSecondRun verifies admission fails while a run is active
// and succeeds again after its goroutine exits.
func TestTryStartRejectsSecondRun(t *testing.T) {
	t.Parallel()

	sup := NewSupervisor(context.Background(), zap.NewNop())
	release := make(chan struct{})
	started := make(chan struct{})

	err := sup.TryStart("first", 10, func(_ context.Context, _ *Handle) {
		close(started)
		<-release
	})
	require.NoError(t, err)
	<-started

	err = sup.TryStart("second", 10, func(_ context.Context, _ *Handle) {})
	require.ErrorIs(t, err, ErrAlreadyRunning)

	close(release)
	require.Eventually(t, func() bool {
		return sup.TryStart("third", 1, func(_ context.Context, _ *Handle) {}) == nil
	}, time.Second, 5*time.Millisecond)
}

// TestTryStartConcurrentAdmission fires many concurrent starts; exactly one
// must win while the blocking run is alive.
func TestTryStartConcurrentAdmission(t *testing.T) {
	t.Parallel()

	sup := NewSupervisor(context.Background(), zap.NewNop())
	release := make(chan struct{})
	defer close(release)

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := sup.TryStart("race", 1, func(_ context.Context, _ *Handle) {
				<-release
			})
			if err == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, admitted)
}

// TestStatusSnapshotWhileWriting checks that readers always observe a
// coherent snapshot: log is a prefix of append order and progress never
// decreases.
func TestStatusSnapshotWhileWriting(t *testing.T) {
	t.Parallel()

	sup := NewSupervisor(context.Background(), zap.NewNop())
	done := make(chan struct{})
	const lines = 200

	err := sup.TryStart("writer", lines, func(_ context.Context, h *Handle) {
		for i := 0; i < lines; i++ {
			h.Logf("line %d", i)
			h.Advance()
		}
		close(done)
	})
	require.NoError(t, err)

	lastProgress := 0
	for {
		st := sup.Status()
		if st.Running {
			require.GreaterOrEqual(t, st.Progress, lastProgress)
			require.LessOrEqual(t, st.Progress, st.Max)
			lastProgress = st.Progress
			for i, line := range st.Log {
				require.Equal(t, fmt.Sprintf("line %d", i), line)
			}
		}
		select {
		case <-done:
			require.Eventually(t, func() bool {
				return !sup.Status().Running
			}, time.Second, 5*time.Millisecond)
			return
		default:
		}
	}
}

// TestStatusNotRunningAfterExit verifies a finished run disappears from
// status without any explicit cleanup call.
func TestStatusNotRunningAfterExit(t *testing.T) {
	t.Parallel()

	sup := NewSupervisor(context.Background(), zap.NewNop())
	require.False(t, sup.Status().Running)

	err := sup.TryStart("quick", 1, func(_ context.Context, h *Handle) {
		h.Log("did a thing")
		h.SetProgress(1, 1)
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return !sup.Status().Running
	}, time.Second, 5*time.Millisecond)
	require.Empty(t, sup.Status().Log)
}

// TestSetProgressIgnoresRegression ensures progress is monotonic even if the
// writer reports a smaller value.
func TestSetProgressIgnoresRegression(t *testing.T) {
	t.Parallel()

	sup := NewSupervisor(context.Background(), zap.NewNop())
	probe := make(chan Status, 1)
	release := make(chan struct{})
	defer close(release)

	err := sup.TryStart("regress", 10, func(_ context.Context, h *Handle) {
		h.SetProgress(5, 10)
		h.SetProgress(3, 10)
		probe <- sup.Status()
		<-release
	})
	require.NoError(t, err)

	st := <-probe
	require.Equal(t, 5, st.Progress)
	require.Equal(t, 10, st.Max)
}

// TestRunPanicReleasesSlot verifies a panicking run still frees the slot and
// leaves an explanatory log line behind for the next status poll.
func TestRunPanicReleasesSlot(t *testing.T) {
	t.Parallel()

	sup := NewSupervisor(context.Background(), zap.NewNop())
	err := sup.TryStart("boom", 1, func(_ context.Context, _ *Handle) {
		panic("kaputt")
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return sup.TryStart("next", 1, func(_ context.Context, _ *Handle) {}) == nil
	}, time.Second, 5*time.Millisecond)
}
