package queue

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// ErrDuplicateJob is returned when a job with the same ID is already queued
var ErrDuplicateJob = stderrors.New("job already queued")

// Producer submits recognition jobs to the Asynq queue
type Producer struct {
	client    *asynq.Client
	queueName string
	maxRetry  int
	timeout   time.Duration
}

// ProducerConfig holds producer configuration
type ProducerConfig struct {
	RedisURL  string
	QueueName string
	// MaxRetry caps Asynq retries for retryable failures
	MaxRetry int
	// Timeout is the per-task deadline enforced by Asynq
	Timeout time.Duration
}

// NewProducer creates a new Asynq producer
func NewProducer(cfg *ProducerConfig) (*Producer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultProcessingTimeout
	}

	return &Producer{
		client:    asynq.NewClient(redisOpt),
		queueName: cfg.QueueName,
		maxRetry:  cfg.MaxRetry,
		timeout:   timeout,
	}, nil
}

// Enqueue submits a job. The job ID doubles as the task ID, so a job can
// only be queued once.
func (p *Producer) Enqueue(ctx context.Context, job *JobData) error {
	task, err := NewRecognizeTextTask(job,
		asynq.Queue(p.queueName),
		asynq.TaskID(job.JobID),
		asynq.MaxRetry(p.maxRetry),
		asynq.Timeout(p.timeout),
	)
	if err != nil {
		return err
	}

	if _, err := p.client.EnqueueContext(ctx, task); err != nil {
		if stderrors.Is(err, asynq.ErrTaskIDConflict) {
			return fmt.Errorf("%w: %s", ErrDuplicateJob, job.JobID)
		}
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// Close closes the underlying client
func (p *Producer) Close() error {
	return p.client.Close()
}
