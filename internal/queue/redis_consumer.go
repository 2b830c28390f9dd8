/**
 * Direct Redis Queue Consumer for the OCR worker
 *
 * Compatible with producers that push job IDs onto a plain Redis LIST and
 * keep the job JSON in a companion hash. Layout for queue "ocr:jobs":
 *   ocr:jobs              LIST of job IDs (LPUSH / BRPOP)
 *   ocr:jobs:data         HASH id → job JSON
 *   ocr:jobs:processing   SET, ocr:jobs:completed SET, ocr:jobs:failed SET
 *   ocr:jobs:results      HASH id → OCR document JSON
 *   ocr:jobs:errors       HASH id → {code, message, attempts}
 *   ocr:jobs:events       PUBSUB channel of job:<status> events
 */

package queue

import (
	"context"
	"encoding/base64"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/adverant/nexus/ocr-worker/internal/errors"
	"github.com/adverant/nexus/ocr-worker/internal/logging"
	"github.com/adverant/nexus/ocr-worker/internal/ocr"
	"github.com/adverant/nexus/ocr-worker/internal/processor"
	"github.com/redis/go-redis/v9"
)

var errNoJobs = stderrors.New("no jobs available")

// RedisJobData represents a job from the Redis queue
type RedisJobData struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Payload    JobData   `json:"payload"`
	CreatedAt  time.Time `json:"createdAt"`
	Attempts   int       `json:"attempts"`
	MaxRetries int       `json:"maxRetries"`
}

// UnmarshalJSON accepts inline image bytes in "imageData", either as a
// base64 string or as a Node.js Buffer object, and turns them into a data
// URI when no imageUri is given.
func (j *JobData) UnmarshalJSON(data []byte) error {
	type Alias JobData
	aux := &struct {
		ImageData interface{} `json:"imageData,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(j),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("failed to unmarshal job payload: %w", err)
	}

	if aux.ImageData == nil || j.ImageURI != "" {
		return nil
	}

	var raw []byte
	switch v := aux.ImageData.(type) {
	case string:
		decoded, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return fmt.Errorf("failed to decode base64 imageData: %w", err)
		}
		raw = decoded

	case map[string]interface{}:
		bufferType, ok := v["type"].(string)
		if !ok || bufferType != "Buffer" {
			return fmt.Errorf("invalid Buffer object format (missing or incorrect 'type' field)")
		}
		dataArray, ok := v["data"].([]interface{})
		if !ok {
			return fmt.Errorf("Buffer object missing 'data' array")
		}
		raw = make([]byte, len(dataArray))
		for i, val := range dataArray {
			byteVal, ok := val.(float64)
			if !ok {
				return fmt.Errorf("invalid byte value in Buffer data array at index %d", i)
			}
			raw[i] = byte(byteVal)
		}

	default:
		return fmt.Errorf("imageData must be either base64 string or Buffer object, got %T", v)
	}

	j.ImageURI = "data:application/octet-stream;base64," + base64.StdEncoding.EncodeToString(raw)
	return nil
}

// RedisConsumer handles job consumption from a Redis list
type RedisConsumer struct {
	client    *redis.Client
	processor processor.TextProcessorInterface
	config    *RedisConsumerConfig
	logger    *logging.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// RedisConsumerConfig holds consumer configuration
type RedisConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	MaxRetries        int
	Processor         processor.TextProcessorInterface
	ProcessingTimeout time.Duration
	Logger            *logging.Logger
}

// NewRedisConsumer creates a new Redis-based queue consumer
func NewRedisConsumer(cfg *RedisConsumerConfig) (*RedisConsumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}

	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pingCancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return newRedisConsumer(client, cfg), nil
}

func newRedisConsumer(client *redis.Client, cfg *RedisConsumerConfig) *RedisConsumer {
	if cfg.QueueName == "" {
		cfg.QueueName = "ocr:jobs"
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("redis-queue")
	}

	consumerCtx, cancel := context.WithCancel(context.Background())
	return &RedisConsumer{
		client:    client,
		processor: cfg.Processor,
		config:    cfg,
		logger:    logger,
		ctx:       consumerCtx,
		cancel:    cancel,
	}
}

func (c *RedisConsumer) key(suffix string) string {
	return fmt.Sprintf("%s:%s", c.config.QueueName, suffix)
}

// Start begins processing jobs from the queue
func (c *RedisConsumer) Start() error {
	c.logger.Info("Starting Redis queue consumer",
		"concurrency", c.config.Concurrency,
		"queue", c.config.QueueName,
	)

	for i := 0; i < c.config.Concurrency; i++ {
		c.wg.Add(1)
		go c.worker(i)
	}

	return nil
}

// Stop gracefully stops the consumer
func (c *RedisConsumer) Stop() error {
	c.logger.Info("Stopping Redis queue consumer")
	c.cancel()
	c.wg.Wait()
	return c.client.Close()
}

// Enqueue stores a job and pushes its ID onto the list
func (c *RedisConsumer) Enqueue(ctx context.Context, job *JobData) error {
	if err := job.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(&RedisJobData{
		ID:         job.JobID,
		Type:       TaskTypeRecognizeText,
		Payload:    *job,
		CreatedAt:  time.Now(),
		MaxRetries: c.config.MaxRetries,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	added, err := c.client.HSetNX(ctx, c.key("data"), job.JobID, data).Result()
	if err != nil {
		return fmt.Errorf("failed to store job: %w", err)
	}
	if !added {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, job.JobID)
	}
	if err := c.client.LPush(ctx, c.config.QueueName, job.JobID).Err(); err != nil {
		return fmt.Errorf("failed to push job: %w", err)
	}
	return nil
}

// worker is a goroutine that processes jobs
func (c *RedisConsumer) worker(id int) {
	defer c.wg.Done()
	c.logger.Debug("Worker started", "worker", id)

	for {
		select {
		case <-c.ctx.Done():
			c.logger.Debug("Worker stopping", "worker", id)
			return
		default:
		}

		if err := c.processNextJob(); err != nil {
			if stderrors.Is(err, errNoJobs) || c.ctx.Err() != nil {
				continue
			}
			c.logger.Error("Worker error", "worker", id, "error", err)
			// Back off before polling again
			select {
			case <-time.After(time.Second):
			case <-c.ctx.Done():
			}
		}
	}
}

// processNextJob fetches and processes the next job from the queue
func (c *RedisConsumer) processNextJob() error {
	// Block for up to 5 seconds waiting for a job
	result, err := c.client.BRPop(c.ctx, 5*time.Second, c.config.QueueName).Result()
	if err != nil {
		if stderrors.Is(err, redis.Nil) {
			return errNoJobs
		}
		return fmt.Errorf("failed to fetch job: %w", err)
	}

	if len(result) < 2 {
		return fmt.Errorf("invalid job result")
	}

	jobID := result[1]

	// A popped job is owned by this worker until it settles, so its
	// processing and bookkeeping outlive a Stop.
	ctx := context.WithoutCancel(c.ctx)

	raw, err := c.client.HGet(ctx, c.key("data"), jobID).Result()
	if err != nil {
		c.markFailed(ctx, jobID, fmt.Errorf("failed to get job data: %w", err), 0)
		return fmt.Errorf("failed to get job data for %s: %w", jobID, err)
	}

	var job RedisJobData
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		c.markFailed(ctx, jobID, fmt.Errorf("failed to unmarshal job: %w", err), 0)
		return fmt.Errorf("failed to unmarshal job %s: %w", jobID, err)
	}
	if job.Payload.JobID == "" {
		job.Payload.JobID = jobID
	}

	c.markProcessing(ctx, jobID)

	doc, err := runJob(ctx, c.processor, &job.Payload, c.config.ProcessingTimeout, c.logger)
	if err == nil {
		c.markCompleted(ctx, jobID, doc)
		return nil
	}

	job.Attempts++
	if !isFinal(err) && job.Attempts < job.MaxRetries {
		if requeueErr := c.requeue(ctx, jobID, &job); requeueErr != nil {
			c.logger.Error("Failed to re-queue job", "jobId", jobID, "error", requeueErr)
			c.markFailed(ctx, jobID, err, job.Attempts)
			return nil
		}
		c.logger.Info("Job re-queued for retry",
			"jobId", jobID,
			"attempt", job.Attempts,
			"maxRetries", job.MaxRetries,
		)
		return nil
	}

	c.markFailed(ctx, jobID, err, job.Attempts)
	return nil
}

// requeue stores the updated attempt count and pushes the job back
func (c *RedisConsumer) requeue(ctx context.Context, jobID string, job *RedisJobData) error {
	updated, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, c.key("data"), jobID, updated)
	pipe.SRem(ctx, c.key("processing"), jobID)
	pipe.LPush(ctx, c.config.QueueName, jobID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to push job: %w", err)
	}
	return nil
}

func (c *RedisConsumer) markProcessing(ctx context.Context, jobID string) {
	c.client.SAdd(ctx, c.key("processing"), jobID)
	c.publish(ctx, jobID, "processing")
}

func (c *RedisConsumer) markCompleted(ctx context.Context, jobID string, doc *ocr.Document) {
	pipe := c.client.TxPipeline()
	pipe.SRem(ctx, c.key("processing"), jobID)
	pipe.SAdd(ctx, c.key("completed"), jobID)
	if data, err := json.Marshal(doc); err == nil {
		pipe.HSet(ctx, c.key("results"), jobID, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("Failed to record completed job", "jobId", jobID, "error", err)
	}
	c.publish(ctx, jobID, "completed")
}

func (c *RedisConsumer) markFailed(ctx context.Context, jobID string, cause error, attempts int) {
	data, _ := json.Marshal(map[string]interface{}{
		"code":     string(errors.CodeOf(cause)),
		"message":  errors.MessageOf(cause),
		"attempts": attempts,
	})

	pipe := c.client.TxPipeline()
	pipe.SRem(ctx, c.key("processing"), jobID)
	pipe.SAdd(ctx, c.key("failed"), jobID)
	pipe.HSet(ctx, c.key("errors"), jobID, data)
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("Failed to record failed job", "jobId", jobID, "error", err)
	}
	c.publish(ctx, jobID, "failed")
}

// publish emits a job event for streaming subscribers
func (c *RedisConsumer) publish(ctx context.Context, jobID, status string) {
	event := map[string]interface{}{
		"event":     fmt.Sprintf("job:%s", status),
		"jobId":     jobID,
		"timestamp": time.Now().Format(time.RFC3339),
	}
	eventData, _ := json.Marshal(event)
	c.client.Publish(ctx, c.key("events"), eventData)
}

// GetStats returns queue statistics
func (c *RedisConsumer) GetStats(ctx context.Context) (map[string]int64, error) {
	pipe := c.client.Pipeline()
	waiting := pipe.LLen(ctx, c.config.QueueName)
	processing := pipe.SCard(ctx, c.key("processing"))
	completed := pipe.SCard(ctx, c.key("completed"))
	failed := pipe.SCard(ctx, c.key("failed"))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to read queue stats: %w", err)
	}

	return map[string]int64{
		"waiting":    waiting.Val(),
		"processing": processing.Val(),
		"completed":  completed.Val(),
		"failed":     failed.Val(),
	}, nil
}
