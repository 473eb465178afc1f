package job

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MemoryJobRepository keeps job records in process memory. Records are lost
// on restart.
type MemoryJobRepository struct {
	mu   sync.RWMutex
	jobs map[int64]Job
}

func NewMemoryJobRepository() *MemoryJobRepository {
	return &MemoryJobRepository{jobs: make(map[int64]Job)}
}

func (r *MemoryJobRepository) Create(ctx context.Context, job *Job) error {
	now := time.Now()
	if job.Status == "" {
		job.Status = JobStatusPending
	}
	job.CreatedAt = now
	job.UpdatedAt = now

	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = *job
	return nil
}

func (r *MemoryJobRepository) Get(ctx context.Context, id int64) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return &job, nil
}

func (r *MemoryJobRepository) UpdateStatus(ctx context.Context, id int64, status JobStatus, result json.RawMessage, errMsg *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = status
	job.Error = errMsg
	if result != nil {
		job.Result = result
	}
	job.UpdatedAt = time.Now()
	r.jobs[id] = job
	return nil
}
