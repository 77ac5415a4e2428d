package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goldeneye0077/stock-picker/internal/domain"
)

func waitForStatus(t *testing.T, m *Manager, id string, want domain.RunStatus) *Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		j, err := m.Get(id)
		require.NoError(t, err)
		if j.Status == want {
			return j
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached status %s", id, want)
	return nil
}

func TestJobCompletes(t *testing.T) {
	m := NewManager(zerolog.Nop())

	id := m.Submit(map[string]string{"type": "selection"}, func(ctx context.Context, progress func(int, int, int)) (interface{}, error) {
		progress(5, 10, 2)
		progress(10, 10, 3)
		return "done", nil
	})

	j := waitForStatus(t, m, id, domain.StatusCompleted)
	assert.Equal(t, "done", j.Result)
	assert.Equal(t, 10, j.Processed)
	assert.Equal(t, 10, j.Total)
	assert.Equal(t, 3, j.Selected)
	assert.Equal(t, 100, j.Percent)
	assert.Empty(t, j.Error)
	assert.Equal(t, "selection", j.Params["type"])
}

func TestJobFails(t *testing.T) {
	m := NewManager(zerolog.Nop())

	id := m.Submit(nil, func(ctx context.Context, progress func(int, int, int)) (interface{}, error) {
		return nil, errors.New("vendor exploded")
	})

	j := waitForStatus(t, m, id, domain.StatusFailed)
	assert.Equal(t, "vendor exploded", j.Error)
	assert.Nil(t, j.Result)
}

func TestJobProgressInvariants(t *testing.T) {
	m := NewManager(zerolog.Nop())

	id := m.Submit(nil, func(ctx context.Context, progress func(int, int, int)) (interface{}, error) {
		progress(3, 10, 1)
		progress(2, 10, 0) // regressions must be ignored
		return nil, nil
	})

	j := waitForStatus(t, m, id, domain.StatusCompleted)
	assert.Equal(t, 10, j.Processed) // completion raises to total
	assert.Equal(t, 1, j.Selected)
	assert.LessOrEqual(t, j.Selected, j.Processed)
	assert.Equal(t, 100, j.Percent)
}

func TestJobGetReturnsSnapshot(t *testing.T) {
	m := NewManager(zerolog.Nop())

	id := m.Submit(map[string]string{"k": "v"}, func(ctx context.Context, progress func(int, int, int)) (interface{}, error) {
		return nil, nil
	})
	waitForStatus(t, m, id, domain.StatusCompleted)

	first, err := m.Get(id)
	require.NoError(t, err)
	first.Params["k"] = "mutated"
	first.Status = domain.StatusPending

	second, err := m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "v", second.Params["k"])
	assert.Equal(t, domain.StatusCompleted, second.Status)
}

func TestJobCancel(t *testing.T) {
	m := NewManager(zerolog.Nop())

	started := make(chan struct{})
	id := m.Submit(nil, func(ctx context.Context, progress func(int, int, int)) (interface{}, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	<-started
	require.NoError(t, m.Cancel(id))

	j := waitForStatus(t, m, id, domain.StatusFailed)
	assert.Equal(t, context.Canceled.Error(), j.Error)

	// Once finished, the job is no longer cancellable.
	err := m.Cancel(id)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestJobGetUnknown(t *testing.T) {
	m := NewManager(zerolog.Nop())
	_, err := m.Get("nope")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestJobList(t *testing.T) {
	m := NewManager(zerolog.Nop())

	first := m.Submit(nil, func(ctx context.Context, progress func(int, int, int)) (interface{}, error) {
		return nil, nil
	})
	second := m.Submit(nil, func(ctx context.Context, progress func(int, int, int)) (interface{}, error) {
		return nil, nil
	})
	waitForStatus(t, m, first, domain.StatusCompleted)
	waitForStatus(t, m, second, domain.StatusCompleted)

	jobs := m.List()
	assert.Len(t, jobs, 2)
}
