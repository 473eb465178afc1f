package job

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

var (
	ErrJobNotFound  = errors.New("job not found")
	ErrJobsDisabled = errors.New("background jobs are disabled")
)

// Job represents a background job. IDs are snowflake IDs and are rendered as
// strings in JSON so that clients do not lose precision.
type Job struct {
	ID        int64           `json:"id,string" gorm:"primaryKey;autoIncrement:false"`
	TaskType  string          `json:"task_type" gorm:"index"`
	Payload   json.RawMessage `json:"payload" gorm:"type:jsonb"`
	Status    JobStatus       `json:"status"`
	Result    json.RawMessage `json:"result,omitempty" gorm:"type:jsonb"`
	Error     *string         `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// JobRepository defines the interface for job persistence
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	// Get returns ErrJobNotFound for an unknown id
	Get(ctx context.Context, id int64) (*Job, error)
	UpdateStatus(ctx context.Context, id int64, status JobStatus, result json.RawMessage, errMsg *string) error
}
