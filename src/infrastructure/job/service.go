package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/bwmarrin/snowflake"
)

// Topic is the queue the jobs are published on
const Topic = "jobs"

// TaskHandler runs one task. The returned value is stored as the job result.
type TaskHandler func(ctx context.Context, payload json.RawMessage) (interface{}, error)

type JobService struct {
	publisher message.Publisher
	repo      JobRepository
	logger    watermill.LoggerAdapter
	node      *snowflake.Node

	mu       sync.RWMutex
	handlers map[string]TaskHandler
}

type JobMessage struct {
	JobID    int64           `json:"job_id,string"`
	TaskType string          `json:"task_type"`
	Payload  json.RawMessage `json:"payload"`
}

func NewJobService(
	publisher message.Publisher,
	repo JobRepository,
	logger watermill.LoggerAdapter,
	node *snowflake.Node,
) *JobService {
	return &JobService{
		publisher: publisher,
		repo:      repo,
		logger:    logger,
		node:      node,
		handlers:  make(map[string]TaskHandler),
	}
}

// Register adds the handler of a task type
func (s *JobService) Register(taskType string, h TaskHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[taskType] = h
}

func (s *JobService) handler(taskType string) (TaskHandler, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handlers[taskType]
	return h, ok
}

// EnqueueJob creates a new job and publishes it to the message queue
func (s *JobService) EnqueueJob(ctx context.Context, taskType string, payload json.RawMessage) (*Job, error) {
	if _, ok := s.handler(taskType); !ok {
		return nil, fmt.Errorf("unknown task type: %s", taskType)
	}
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}

	job := &Job{
		ID:       s.node.Generate().Int64(),
		TaskType: taskType,
		Payload:  payload,
		Status:   JobStatusPending,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	msgPayload, err := json.Marshal(JobMessage{
		JobID:    job.ID,
		TaskType: job.TaskType,
		Payload:  job.Payload,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job message: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), msgPayload)
	if err := s.publisher.Publish(Topic, msg); err != nil {
		errStr := err.Error()
		if updateErr := s.repo.UpdateStatus(ctx, job.ID, JobStatusFailed, nil, &errStr); updateErr != nil {
			s.logger.Error("Failed to mark unpublished job as failed", updateErr, watermill.LogFields{"job_id": job.ID})
		}
		return nil, fmt.Errorf("failed to publish job message: %w", err)
	}

	s.logger.Info("Job enqueued", watermill.LogFields{"job_id": job.ID, "task_type": taskType})
	return job, nil
}

// GetJob returns the job record
func (s *JobService) GetJob(ctx context.Context, id int64) (*Job, error) {
	return s.repo.Get(ctx, id)
}

// ProcessJobMessage processes a job message from the queue. A failing task
// is recorded on the job and the message is acked; only storage and decoding
// errors are returned for redelivery.
func (s *JobService) ProcessJobMessage(msg *message.Message) error {
	var jobMsg JobMessage
	if err := json.Unmarshal(msg.Payload, &jobMsg); err != nil {
		return fmt.Errorf("failed to unmarshal job message: %w", err)
	}

	ctx := msg.Context()

	job, err := s.repo.Get(ctx, jobMsg.JobID)
	if err != nil {
		return fmt.Errorf("failed to get job %d: %w", jobMsg.JobID, err)
	}

	if job.Status == JobStatusCompleted || job.Status == JobStatusFailed {
		s.logger.Info("Skipping finished job", watermill.LogFields{"job_id": job.ID, "status": job.Status})
		return nil
	}

	if err := s.repo.UpdateStatus(ctx, job.ID, JobStatusRunning, nil, nil); err != nil {
		return fmt.Errorf("failed to update job status to running: %w", err)
	}

	result, err := s.processJob(ctx, job)
	if err != nil {
		errStr := err.Error()
		if updateErr := s.repo.UpdateStatus(ctx, job.ID, JobStatusFailed, nil, &errStr); updateErr != nil {
			return fmt.Errorf("failed to update job status to failed: %w", updateErr)
		}
		s.logger.Error("Job failed", err, watermill.LogFields{"job_id": job.ID, "task_type": job.TaskType})
		return nil
	}

	if err := s.repo.UpdateStatus(ctx, job.ID, JobStatusCompleted, result, nil); err != nil {
		return fmt.Errorf("failed to update job status to completed: %w", err)
	}

	s.logger.Info("Job completed", watermill.LogFields{"job_id": job.ID, "task_type": job.TaskType})
	return nil
}

// processJob dispatches to the registered task handler
func (s *JobService) processJob(ctx context.Context, job *Job) (json.RawMessage, error) {
	h, ok := s.handler(job.TaskType)
	if !ok {
		return nil, fmt.Errorf("unknown task type: %s", job.TaskType)
	}

	out, err := h(ctx, job.Payload)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, nil
	}
	result, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job result: %w", err)
	}
	return result, nil
}

// ParseID parses the string form of a job ID
func ParseID(s string) (int64, error) {
	id, err := snowflake.ParseString(s)
	if err != nil {
		return 0, errors.Join(ErrJobNotFound, err)
	}
	return id.Int64(), nil
}
