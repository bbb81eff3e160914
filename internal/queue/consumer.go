/**
 * Queue Consumer for the FloorScan Worker
 *
 * Consumes scan jobs through Asynq. The direct Redis list consumer in
 * redis_consumer.go is the default backend; both share runScan.
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/adverant/nexus/floorscan-worker/internal/errors"
	"github.com/adverant/nexus/floorscan-worker/internal/logging"
	"github.com/adverant/nexus/floorscan-worker/internal/processor"
)

// TaskScanFloor is the Asynq task type of a scan job.
const TaskScanFloor = "scan-floor"

const defaultProcessingTimeout = 2 * time.Minute

// Consumer handles job consumption from an Asynq queue
type Consumer struct {
	client    *asynq.Client
	server    *asynq.Server
	mux       *asynq.ServeMux
	processor processor.ScanProcessorInterface
	config    *ConsumerConfig
	logger    *logging.Logger
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	Processor         processor.ScanProcessorInterface
	ProcessingTimeout time.Duration
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
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	logger := logging.NewLogger("AsynqConsumer")

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10,
				"default":     1,
			},
			// 5s, 10s, 20s ... capped at a minute
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				delay := time.Duration(5*(1<<uint(n))) * time.Second
				if delay > 60*time.Second {
					delay = 60 * time.Second
				}
				return delay
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task processing error", "type", task.Type(), "error", err)
			}),
		},
	)

	c := &Consumer{
		client:    asynq.NewClient(redisOpt),
		server:    server,
		mux:       asynq.NewServeMux(),
		processor: cfg.Processor,
		config:    cfg,
		logger:    logger,
	}
	c.mux.HandleFunc(TaskScanFloor, c.handleScanFloor)

	return c, nil
}

// NewScanTask builds a task for Enqueue.
func NewScanTask(p *ScanJobPayload) (*asynq.Task, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskScanFloor, data), nil
}

// Enqueue submits a scan job to the consumer's own queue.
func (c *Consumer) Enqueue(ctx context.Context, p *ScanJobPayload) error {
	task, err := NewScanTask(p)
	if err != nil {
		return fmt.Errorf("failed to build task: %w", err)
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(c.config.QueueName), asynq.TaskID(p.JobID))
	return err
}

// Start starts the queue consumer
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("Starting queue consumer", "concurrency", c.config.Concurrency, "queue", c.config.QueueName)

	if err := c.server.Start(c.mux); err != nil {
		return fmt.Errorf("failed to start asynq server: %w", err)
	}
	return nil
}

// Stop stops the queue consumer gracefully
func (c *Consumer) Stop(ctx context.Context) error {
	c.logger.Info("Stopping queue consumer")
	c.server.Shutdown()

	if err := c.client.Close(); err != nil {
		return fmt.Errorf("failed to close client: %w", err)
	}
	c.logger.Info("Queue consumer stopped")
	return nil
}

func (c *Consumer) handleScanFloor(ctx context.Context, task *asynq.Task) error {
	var payload ScanJobPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		// Malformed payloads never succeed on retry.
		return fmt.Errorf("failed to unmarshal scan job: %v: %w", err, asynq.SkipRetry)
	}

	_, err := runScan(ctx, c.processor, &payload, c.config.ProcessingTimeout, c.logger)
	if err != nil && !retryable(err) {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return err
}

// GetStatistics returns consumer statistics
func (c *Consumer) GetStatistics() map[string]interface{} {
	return map[string]interface{}{
		"backend":     "asynq",
		"concurrency": c.config.Concurrency,
		"queue":       c.config.QueueName,
	}
}

// runScan processes one job under the job timeout and records its outcome
// through the processor's status updates.
func runScan(ctx context.Context, proc processor.ScanProcessorInterface, p *ScanJobPayload, timeout time.Duration, logger *logging.Logger) (*processor.ScanResult, error) {
	start := time.Now()
	log := logger.With("jobId", p.JobID)

	if timeout <= 0 {
		timeout = defaultProcessingTimeout
	}

	log.Info("Processing scan job", "accountId", p.AccountID, "bytes", len(p.Image), "mode", p.Mode, "timeout", timeout.String())

	if err := proc.UpdateJobStatus(ctx, p.JobID, "processing", 0, map[string]interface{}{"accountId": p.AccountID}); err != nil {
		log.Warn("Failed to update status to processing", "error", err)
	}

	scanCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := proc.ProcessScan(scanCtx, p.Request())
	took := time.Since(start)

	if err != nil {
		if scanCtx.Err() == context.DeadlineExceeded {
			err = errors.NewProcessingTimeoutError(p.JobID, timeout, err)
			log.Error("Scan timed out", "duration", took.String(), "timeout", timeout.String())
		} else {
			log.Error("Scan failed", "duration", took.String(), "error", err)
		}
		if updateErr := proc.UpdateJobStatus(ctx, p.JobID, "failed", 100, failureMetadata(p, err, took)); updateErr != nil {
			log.Warn("Failed to update status to failed", "error", updateErr)
		}
		return nil, err
	}

	log.Info("Scan completed",
		"duration", took.String(),
		"successful", result.Successful,
		"failed", result.Failed,
		"confidence", result.AverageConfidence)

	if err := proc.UpdateJobStatus(ctx, p.JobID, "completed", 100, completionMetadata(p, result, took)); err != nil {
		log.Warn("Failed to update status to completed", "error", err)
	}
	return result, nil
}

// retryable reports whether a failed job may succeed when run again.
func retryable(err error) bool {
	switch errors.CodeOf(err) {
	case errors.ErrorInvalidJob, errors.ErrorNoRegionsDetected:
		return false
	}
	return true
}
