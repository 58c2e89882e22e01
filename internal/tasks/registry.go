package tasks

import (
	"fmt"
	"hash/fnv"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/desertthunder/tixd/internal/models"
	"github.com/desertthunder/tixd/internal/shared"
)

const registryShards = 32

// Registry holds the latest state of every task, keyed by task ID.
//
// Keys are spread over a fixed number of shards, each guarded by its own lock, so workers updating different tasks
// rarely contend. States are stored by value.
type Registry struct {
	shards [registryShards]*registryShard
}

type registryShard struct {
	mu     sync.RWMutex
	states map[string]models.TaskState
}

// NewRegistry creates an empty [Registry].
func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i] = &registryShard{states: make(map[string]models.TaskState)}
	}
	return r
}

func (r *Registry) shard(taskID string) *registryShard {
	h := fnv.New32a()
	h.Write([]byte(taskID))
	return r.shards[h.Sum32()%registryShards]
}

// Put stores state as the latest for its task, replacing any previous value.
func (r *Registry) Put(state models.TaskState) {
	s := r.shard(state.TaskID)
	s.mu.Lock()
	s.states[state.TaskID] = state
	s.mu.Unlock()
}

// PutIfAbsent stores state only when its task ID is not yet known and reports whether it did.
func (r *Registry) PutIfAbsent(state models.TaskState) bool {
	s := r.shard(state.TaskID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.states[state.TaskID]; exists {
		return false
	}
	s.states[state.TaskID] = state
	return true
}

// Get returns the latest state of a task or an error wrapping [shared.ErrTaskNotFound].
func (r *Registry) Get(taskID string) (models.TaskState, error) {
	s := r.shard(taskID)
	s.mu.RLock()
	state, ok := s.states[taskID]
	s.mu.RUnlock()
	if !ok {
		return models.TaskState{}, fmt.Errorf("%w: %s", shared.ErrTaskNotFound, taskID)
	}
	return state, nil
}

// List returns a snapshot of every task ordered by task ID, which sorts by submission second.
func (r *Registry) List() []models.TaskState {
	var out []models.TaskState
	for _, s := range r.shards {
		s.mu.RLock()
		for _, state := range s.states {
			out = append(out, state)
		}
		s.mu.RUnlock()
	}
	slices.SortFunc(out, func(a, b models.TaskState) int {
		return strings.Compare(a.TaskID, b.TaskID)
	})
	return out
}

// Len returns the number of tasks held.
func (r *Registry) Len() int {
	n := 0
	for _, s := range r.shards {
		s.mu.RLock()
		n += len(s.states)
		s.mu.RUnlock()
	}
	return n
}

// Evict removes terminal tasks last updated before cutoff and returns their IDs.
//
// Pending and running tasks are never evicted.
func (r *Registry) Evict(cutoff time.Time) []string {
	var evicted []string
	for _, s := range r.shards {
		s.mu.Lock()
		for id, state := range s.states {
			if state.Status.IsTerminal() && state.UpdatedAt.Before(cutoff) {
				delete(s.states, id)
				evicted = append(evicted, id)
			}
		}
		s.mu.Unlock()
	}
	return evicted
}
