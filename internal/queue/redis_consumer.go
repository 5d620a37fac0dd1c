// Package queue wires Manager.Execute up to asynq: a job started via
// the HTTP API is enqueued as a task in Redis and run when a worker
// claims it. Job state itself is held only in the Manager's memory and
// is not restored after an API-process restart.
package queue

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/videoindex/ingestor/internal/jobmanager"
)

const taskTypeIngestRun = "ingest:run"

// RedisConsumer is the asynq-backed dispatcher and worker combined: it
// both enqueues "ingest:run" tasks (jobmanager.Dispatcher) and, once
// Start is called, consumes them.
type RedisConsumer struct {
	client  *asynq.Client
	server  *asynq.Server
	manager *jobmanager.Manager
}

// Config holds consumer configuration.
type Config struct {
	RedisURL    string
	Concurrency int
	Manager     *jobmanager.Manager
}

// NewRedisConsumer creates a new Redis queue consumer over the given
// manager.
func NewRedisConsumer(cfg Config) (*RedisConsumer, error) {
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := asynq.NewClient(redisOpt)

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				"ingestor:default": 3,
				"ingestor:low":     1,
			},
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				return time.Duration(1<<uint(n)) * time.Minute
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Printf("task %s failed: %v", task.Type(), err)
			}),
		},
	)

	return &RedisConsumer{client: client, server: server, manager: cfg.Manager}, nil
}

// Enqueue implements jobmanager.Dispatcher.
func (rc *RedisConsumer) Enqueue(jobID string) error {
	task := asynq.NewTask(taskTypeIngestRun, []byte(jobID))
	if _, err := rc.client.Enqueue(task, asynq.Queue("ingestor:default")); err != nil {
		return fmt.Errorf("enqueue job %s: %w", jobID, err)
	}
	return nil
}

// Start runs the worker loop, blocking until Stop is called or the
// server errors.
func (rc *RedisConsumer) Start() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(taskTypeIngestRun, rc.handleIngestRun)

	log.Println("starting ingestion worker...")
	if err := rc.server.Run(mux); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}
	return nil
}

// Stop stops the consumer gracefully.
func (rc *RedisConsumer) Stop() {
	log.Println("shutting down ingestion worker...")
	rc.server.Shutdown()
	rc.client.Close()
}

func (rc *RedisConsumer) handleIngestRun(ctx context.Context, task *asynq.Task) error {
	jobID := string(task.Payload())
	log.Printf("executing job %s", jobID)

	if err := rc.manager.Execute(jobID); err != nil {
		log.Printf("job %s failed: %v", jobID, err)
		return err
	}

	log.Printf("job %s handed off to pipeline", jobID)
	return nil
}

// HealthCheck checks if the worker is healthy.
func (rc *RedisConsumer) HealthCheck() error {
	if rc.server == nil {
		return fmt.Errorf("server not initialized")
	}
	return nil
}
