// Package jobs tracks asynchronous runs in process memory: submit spawns a
// goroutine, progress lands under the manager lock, reads return snapshots.
// Jobs do not survive a restart.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/goldeneye0077/stock-picker/internal/domain"
)

// Job is the tracked state of one asynchronous run.
type Job struct {
	ID        string            `json:"id"`
	Params    map[string]string `json:"params,omitempty"`
	Status    domain.RunStatus  `json:"status"`
	Processed int               `json:"processed"`
	Total     int               `json:"total"`
	Selected  int               `json:"selected"`
	Percent   int               `json:"percent"`
	Error     string            `json:"error,omitempty"`
	// Result is set once when fn returns and is shared across snapshots;
	// callers must treat it as read-only.
	Result    interface{} `json:"result,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Fn is the unit of work. It reports progress through the callback and
// returns the job's result or a fatal error.
type Fn func(ctx context.Context, progress func(processed, total, selected int)) (interface{}, error)

// Manager is the in-memory job registry.
type Manager struct {
	mu      sync.Mutex
	jobs    map[string]*Job
	cancels map[string]context.CancelFunc
	now     func() time.Time
	log     zerolog.Logger
}

// NewManager creates an empty manager.
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		jobs:    make(map[string]*Job),
		cancels: make(map[string]context.CancelFunc),
		now:     time.Now,
		log:     log.With().Str("component", "jobs").Logger(),
	}
}

// Submit registers a pending job and spawns fn on its own goroutine.
func (m *Manager) Submit(params map[string]string, fn Fn) string {
	id := uuid.New().String()
	ctx, cancel := context.WithCancel(context.Background())

	now := m.now()
	m.mu.Lock()
	m.jobs[id] = &Job{
		ID:        id,
		Params:    copyParams(params),
		Status:    domain.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.cancels[id] = cancel
	m.mu.Unlock()

	go m.run(ctx, id, fn)
	return id
}

func (m *Manager) run(ctx context.Context, id string, fn Fn) {
	m.update(id, func(j *Job) { j.Status = domain.StatusRunning })

	result, err := fn(ctx, func(processed, total, selected int) {
		m.update(id, func(j *Job) {
			if processed > j.Processed {
				j.Processed = processed
			}
			if total > 0 {
				j.Total = total
			}
			if selected > j.Selected {
				j.Selected = selected
			}
			if j.Total > 0 {
				j.Percent = j.Processed * 100 / j.Total
			}
		})
	})

	m.mu.Lock()
	delete(m.cancels, id)
	m.mu.Unlock()

	if err != nil {
		m.update(id, func(j *Job) {
			j.Status = domain.StatusFailed
			j.Error = err.Error()
		})
		m.log.Warn().Str("job_id", id).Err(err).Msg("Job failed")
		return
	}
	m.update(id, func(j *Job) {
		j.Status = domain.StatusCompleted
		j.Result = result
		if j.Total > 0 {
			j.Processed = j.Total
			j.Percent = 100
		}
	})
	m.log.Info().Str("job_id", id).Msg("Job completed")
}

// Get returns a copied snapshot; (nil, ErrNotFound) for unknown ids. Params
// is deep-copied, Result is shared per its read-only contract.
func (m *Manager) Get(id string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
	}
	snap := *j
	snap.Params = copyParams(j.Params)
	return &snap, nil
}

// List returns snapshots of every tracked job.
func (m *Manager) List() []*Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		snap := *j
		snap.Params = copyParams(j.Params)
		out = append(out, &snap)
	}
	return out
}

// Cancel requests cancellation. The job lands in failed once fn observes the
// context, or immediately when fn already returned.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	cancel, ok := m.cancels[id]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("job %s not cancellable: %w", id, domain.ErrNotFound)
	}
	cancel()
	return nil
}

func (m *Manager) update(id string, apply func(*Job)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return
	}
	// Terminal states never regress
	if j.Status == domain.StatusCompleted || j.Status == domain.StatusFailed {
		return
	}
	apply(j)
	j.UpdatedAt = m.now()
}

func copyParams(params map[string]string) map[string]string {
	if params == nil {
		return nil
	}
	out := make(map[string]string, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}
