package workflow

import (
	"context"
	"fmt"
	"sync"
)

// InMemoryRepository is a thread-safe Repository used when no database is configured.
type InMemoryRepository struct {
	mu      sync.RWMutex
	records map[string]Record
	steps   map[string][]StepStatus
}

// NewInMemoryRepository creates an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		records: make(map[string]Record),
		steps:   make(map[string][]StepStatus),
	}
}

func (r *InMemoryRepository) Create(_ context.Context, rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.records[rec.ID]; exists {
		return fmt.Errorf("workflow %s already exists", rec.ID)
	}
	r.records[rec.ID] = rec
	return nil
}

func (r *InMemoryRepository) Get(_ context.Context, id string) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return Record{}, fmt.Errorf("workflow %s: %w", id, ErrNotFound)
	}
	return rec, nil
}

func (r *InMemoryRepository) UpdateStatus(_ context.Context, id string, step int, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return fmt.Errorf("workflow %s: %w", id, ErrNotFound)
	}
	rec.CurrentStep = step
	rec.Status = status
	r.records[id] = rec
	return nil
}

func (r *InMemoryRepository) LogStep(_ context.Context, entry StepStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps[entry.WorkflowID] = append(r.steps[entry.WorkflowID], entry)
	return nil
}

func (r *InMemoryRepository) Steps(_ context.Context, id string) ([]StepStatus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]StepStatus, len(r.steps[id]))
	copy(out, r.steps[id])
	return out, nil
}

// Len returns the number of workflow records.
func (r *InMemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}
