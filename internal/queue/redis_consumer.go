/**
 * Direct Redis Queue Consumer for the FloorScan Worker
 *
 * Compatible with the scan API's TypeScript RedisQueue: job IDs are pushed
 * to a list, job bodies live in the "<queue>:data" hash.
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/adverant/nexus/floorscan-worker/internal/logging"
	"github.com/adverant/nexus/floorscan-worker/internal/processor"
)

// RedisJobData represents a job from the Redis queue
type RedisJobData struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Payload    ScanJobPayload `json:"payload"`
	CreatedAt  time.Time      `json:"createdAt"`
	Attempts   int            `json:"attempts"`
	MaxRetries int            `json:"maxRetries"`
}

// RedisConsumer handles job consumption from Redis queue
type RedisConsumer struct {
	client    *redis.Client
	processor processor.ScanProcessorInterface
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
	Processor         processor.ScanProcessorInterface
	ProcessingTimeout time.Duration
}

// NewRedisConsumer creates a new Redis-based queue consumer
func NewRedisConsumer(cfg *RedisConsumerConfig) (*RedisConsumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.QueueName == "" {
		cfg.QueueName = "floorscan:jobs"
	}
	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return newRedisConsumer(client, cfg), nil
}

func newRedisConsumer(client *redis.Client, cfg *RedisConsumerConfig) *RedisConsumer {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisConsumer{
		client:    client,
		processor: cfg.Processor,
		config:    cfg,
		logger:    logging.NewLogger("RedisConsumer"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (c *RedisConsumer) key(suffix string) string {
	return fmt.Sprintf("%s:%s", c.config.QueueName, suffix)
}

// Start begins processing jobs from the queue
func (c *RedisConsumer) Start() error {
	c.logger.Info("Starting Redis queue consumer", "concurrency", c.config.Concurrency, "queue", c.config.QueueName)

	for i := 0; i < c.config.Concurrency; i++ {
		c.wg.Add(1)
		go c.worker(i)
	}
	return nil
}

// Stop gracefully stops the consumer
func (c *RedisConsumer) Stop() error {
	c.logger.Info("Stopping queue consumer")
	c.cancel()
	c.wg.Wait()
	return c.client.Close()
}

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

		found, err := c.processNextJob()
		if err != nil && c.ctx.Err() == nil {
			c.logger.Warn("Worker error", "worker", id, "error", err)
		}
		if !found && err != nil {
			select {
			case <-c.ctx.Done():
			case <-time.After(time.Second):
			}
		}
	}
}

// processNextJob pops and runs one job. found is false when the queue was
// empty or the job body could not be read.
func (c *RedisConsumer) processNextJob() (found bool, err error) {
	result, err := c.client.BRPop(c.ctx, 5*time.Second, c.config.QueueName).Result()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, fmt.Errorf("failed to fetch job: %w", err)
	}
	if len(result) < 2 {
		return false, fmt.Errorf("invalid job result")
	}

	id := result[1]
	raw, err := c.client.HGet(c.ctx, c.key("data"), id).Result()
	if err != nil {
		return false, fmt.Errorf("failed to get job data for %s: %w", id, err)
	}

	var job RedisJobData
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		c.markFailed(id, map[string]interface{}{"error": err.Error()})
		return false, fmt.Errorf("failed to unmarshal job %s: %w", id, err)
	}
	if job.Payload.JobID == "" {
		job.Payload.JobID = id
	}

	c.markProcessing(job.Payload.JobID)

	scan, err := runScan(c.ctx, c.processor, &job.Payload, c.config.ProcessingTimeout, c.logger)
	if err == nil {
		c.markCompleted(job.Payload.JobID, scan)
		return true, nil
	}

	job.Attempts++
	if retryable(err) && job.Attempts < job.MaxRetries {
		updated, mErr := json.Marshal(job)
		if mErr == nil {
			c.client.HSet(c.ctx, c.key("data"), id, updated)
			c.client.LPush(c.ctx, c.config.QueueName, id)
			c.logger.Info("Job re-queued for retry", "jobId", job.Payload.JobID, "attempt", job.Attempts, "maxRetries", job.MaxRetries)
			return true, nil
		}
	}

	c.markFailed(job.Payload.JobID, map[string]interface{}{
		"error":    err.Error(),
		"attempts": job.Attempts,
	})
	return true, nil
}

func (c *RedisConsumer) markProcessing(jobID string) {
	c.client.SAdd(c.ctx, c.key("processing"), jobID)
	c.publish(jobID, "processing")
}

func (c *RedisConsumer) markCompleted(jobID string, result *processor.ScanResult) {
	pipe := c.client.TxPipeline()
	pipe.SRem(c.ctx, c.key("processing"), jobID)
	pipe.SAdd(c.ctx, c.key("completed"), jobID)
	if data, err := json.Marshal(result); err == nil {
		pipe.HSet(c.ctx, c.key("results"), jobID, data)
	}
	if _, err := pipe.Exec(c.ctx); err != nil {
		c.logger.Warn("Failed to record completed job", "jobId", jobID, "error", err)
	}
	c.publish(jobID, "completed")
}

func (c *RedisConsumer) markFailed(jobID string, detail map[string]interface{}) {
	pipe := c.client.TxPipeline()
	pipe.SRem(c.ctx, c.key("processing"), jobID)
	pipe.SAdd(c.ctx, c.key("failed"), jobID)
	if data, err := json.Marshal(detail); err == nil {
		pipe.HSet(c.ctx, c.key("errors"), jobID, data)
	}
	if _, err := pipe.Exec(c.ctx); err != nil {
		c.logger.Warn("Failed to record failed job", "jobId", jobID, "error", err)
	}
	c.publish(jobID, "failed")
}

// publish emits a job event for the API's WebSocket stream.
func (c *RedisConsumer) publish(jobID, status string) {
	event, _ := json.Marshal(map[string]interface{}{
		"event":     fmt.Sprintf("job:%s", status),
		"jobId":     jobID,
		"timestamp": time.Now().Format(time.RFC3339),
	})
	c.client.Publish(c.ctx, c.key("events"), event)
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
