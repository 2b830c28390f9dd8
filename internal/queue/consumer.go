/**
 * Queue Consumer for the OCR worker
 *
 * Consumes "recognize-text" tasks from Redis via Asynq and runs them
 * through the text processor. Image and unavailable-model failures are
 * final; only unexpected failures are left to Asynq's retry policy.
 */

package queue

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"time"

	"github.com/adverant/nexus/ocr-worker/internal/errors"
	"github.com/adverant/nexus/ocr-worker/internal/logging"
	"github.com/adverant/nexus/ocr-worker/internal/ocr"
	"github.com/adverant/nexus/ocr-worker/internal/processor"
	"github.com/adverant/nexus/ocr-worker/internal/storage"
	"github.com/hibiken/asynq"
)

// TaskTypeRecognizeText is the Asynq task type for recognition jobs
const TaskTypeRecognizeText = "recognize-text"

const defaultProcessingTimeout = 5 * time.Minute

// JobData is the payload of a recognition job
type JobData struct {
	JobID        string                 `json:"jobId"`
	ImageURI     string                 `json:"imageUri"`
	DetectorType string                 `json:"detectorType,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// Validate checks the fields a job must carry
func (j *JobData) Validate() error {
	if j.JobID == "" {
		return fmt.Errorf("jobId is required")
	}
	if j.ImageURI == "" {
		return fmt.Errorf("imageUri is required")
	}
	return nil
}

// NewRecognizeTextTask builds the Asynq task for a job
func NewRecognizeTextTask(job *JobData, opts ...asynq.Option) (*asynq.Task, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job data: %w", err)
	}
	return asynq.NewTask(TaskTypeRecognizeText, payload, opts...), nil
}

// Consumer handles job consumption from Redis queue
type Consumer struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	processor processor.TextProcessorInterface
	config    *ConsumerConfig
	logger    *logging.Logger
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	Processor         processor.TextProcessorInterface
	ProcessingTimeout time.Duration
	Logger            *logging.Logger
}

// NewConsumer creates a new queue consumer
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}

	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}

	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("queue")
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	consumer := &Consumer{
		mux:       asynq.NewServeMux(),
		processor: cfg.Processor,
		config:    cfg,
		logger:    logger,
	}

	consumer.server = asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10,
				"default":     1,
			},
			// Exponential backoff: 5s, 10s, 20s, capped at 60s
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				delay := time.Duration(5*(1<<uint(n))) * time.Second
				if delay > 60*time.Second {
					delay = 60 * time.Second
				}
				return delay
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task processing error",
					"type", task.Type(),
					"payload", string(task.Payload()),
					"error", err,
				)
			}),
			Logger: &asynqLogger{logger: logger},
		},
	)

	consumer.mux.HandleFunc(TaskTypeRecognizeText, consumer.handleRecognizeText)

	return consumer, nil
}

// Start starts the queue consumer
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("Starting queue consumer",
		"concurrency", c.config.Concurrency,
		"queue", c.config.QueueName,
	)

	if err := c.server.Start(c.mux); err != nil {
		return fmt.Errorf("failed to start queue consumer: %w", err)
	}
	return nil
}

// Stop stops the queue consumer gracefully
func (c *Consumer) Stop(ctx context.Context) error {
	c.logger.Info("Stopping queue consumer")
	c.server.Shutdown()
	c.logger.Info("Queue consumer stopped")
	return nil
}

// handleRecognizeText runs one recognition job
func (c *Consumer) handleRecognizeText(ctx context.Context, task *asynq.Task) error {
	var job JobData
	if err := json.Unmarshal(task.Payload(), &job); err != nil {
		return fmt.Errorf("failed to unmarshal job data: %v: %w", err, asynq.SkipRetry)
	}
	if err := job.Validate(); err != nil {
		return fmt.Errorf("invalid job: %v: %w", err, asynq.SkipRetry)
	}

	if _, err := runJob(ctx, c.processor, &job, c.config.ProcessingTimeout, c.logger); err != nil {
		if isFinal(err) {
			return fmt.Errorf("recognition failed: %v: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("recognition failed: %w", err)
	}
	return nil
}

// runJob drives one job through the processor and records every status
// transition. The returned error is the recognition error, if any.
func runJob(ctx context.Context, p processor.TextProcessorInterface, job *JobData, timeout time.Duration, logger *logging.Logger) (*ocr.Document, error) {
	startTime := time.Now()
	jobLogger := logger.With("jobId", job.JobID)

	if err := p.UpdateJobStatus(ctx, &storage.JobUpdate{
		JobID:        job.JobID,
		Status:       storage.StatusProcessing,
		ImageURI:     job.ImageURI,
		DetectorType: job.DetectorType,
		Metadata:     job.Metadata,
	}); err != nil {
		jobLogger.Warn("Failed to update status to processing", "error", err)
	}

	if timeout <= 0 {
		timeout = defaultProcessingTimeout
	}
	processCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	doc, err := p.RecognizeText(processCtx, job.ImageURI, job.DetectorType)
	duration := time.Since(startTime)

	if err != nil {
		jobLogger.Warn("Recognition job failed",
			"code", string(errors.CodeOf(err)),
			"error", err,
			"durationMs", duration.Milliseconds(),
		)
		if updateErr := p.UpdateJobStatus(ctx, &storage.JobUpdate{
			JobID:            job.JobID,
			Status:           storage.StatusFailed,
			ProcessingTimeMs: duration.Milliseconds(),
			ErrorCode:        string(errors.CodeOf(err)),
			ErrorMessage:     errors.MessageOf(err),
		}); updateErr != nil {
			jobLogger.Warn("Failed to update status to failed", "error", updateErr)
		}
		return nil, err
	}

	jobLogger.Info("Recognition job completed",
		"blocks", len(doc.Blocks),
		"durationMs", duration.Milliseconds(),
	)
	if err := p.UpdateJobStatus(ctx, &storage.JobUpdate{
		JobID:            job.JobID,
		Status:           storage.StatusCompleted,
		Document:         doc,
		ProcessingTimeMs: duration.Milliseconds(),
	}); err != nil {
		jobLogger.Warn("Failed to update status to completed", "error", err)
	}
	return doc, nil
}

// isFinal reports whether retrying the job cannot change the outcome
func isFinal(err error) bool {
	var re *errors.RecognitionError
	if !stderrors.As(err, &re) {
		return false
	}
	return re.Code() == errors.CodeImage || re.Kind == errors.KindUnavailableModel
}

// GetStatistics returns consumer statistics
func (c *Consumer) GetStatistics() map[string]interface{} {
	return map[string]interface{}{
		"concurrency": c.config.Concurrency,
		"queue":       c.config.QueueName,
	}
}

// asynqLogger routes Asynq's internal logging through the service logger
type asynqLogger struct {
	logger *logging.Logger
}

func (l *asynqLogger) Debug(args ...interface{}) { l.logger.Debug(fmt.Sprint(args...)) }
func (l *asynqLogger) Info(args ...interface{})  { l.logger.Info(fmt.Sprint(args...)) }
func (l *asynqLogger) Warn(args ...interface{})  { l.logger.Warn(fmt.Sprint(args...)) }
func (l *asynqLogger) Error(args ...interface{}) { l.logger.Error(fmt.Sprint(args...)) }
func (l *asynqLogger) Fatal(args ...interface{}) {
	l.logger.Error(fmt.Sprint(args...))
	os.Exit(1)
}
