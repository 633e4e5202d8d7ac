// Package queue provides a Redis-backed task queue with at-least-once
// delivery. Producers hand work between pipeline stages explicitly
// (ingest -> consensus check -> confirmation -> open/close) instead of
// sharing poll loops; delayed tasks go through a sorted set scored by due
// time so a reversal's re-open can settle after its close.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"consensus-trading-bot/internal/logging"
)

const (
	// readyKey is the list holding runnable tasks
	readyKey = "tasks:ready"

	// delayedKey is the sorted set holding tasks scored by due time (unix ms)
	delayedKey = "tasks:delayed"

	// promoteInterval is how often due delayed tasks move to the ready list
	promoteInterval = 500 * time.Millisecond
)

// ErrSkip marks a task that ended as an idempotent no-op. It is a terminal
// outcome, not a failure.
var ErrSkip = errors.New("task skipped")

// Task is one unit of work on the queue
type Task struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// HandlerFunc processes one task payload
type HandlerFunc func(ctx context.Context, payload json.RawMessage) error

// Config holds queue configuration
type Config struct {
	Workers     int
	PollTimeout time.Duration
}

// Queue is a Redis-backed task queue
type Queue struct {
	client   *redis.Client
	cfg      Config
	log      *logging.Logger
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

// New creates a new queue
func New(client *redis.Client, cfg Config, log *logging.Logger) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 5 * time.Second
	}
	return &Queue{
		client:   client,
		cfg:      cfg,
		log:      log.WithComponent("queue"),
		handlers: make(map[string]HandlerFunc),
	}
}

// Register binds a handler to a task type. Must be called before Start.
func (q *Queue) Register(taskType string, handler HandlerFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[taskType] = handler
}

// Enqueue pushes a task onto the ready list
func (q *Queue) Enqueue(ctx context.Context, taskType string, payload interface{}) error {
	data, err := q.encode(taskType, payload)
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, readyKey, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", taskType, err)
	}
	return nil
}

// EnqueueIn schedules a task to become runnable after the given delay
func (q *Queue) EnqueueIn(ctx context.Context, delay time.Duration, taskType string, payload interface{}) error {
	data, err := q.encode(taskType, payload)
	if err != nil {
		return err
	}
	due := float64(time.Now().Add(delay).UnixMilli())
	if err := q.client.ZAdd(ctx, delayedKey, redis.Z{Score: due, Member: data}).Err(); err != nil {
		return fmt.Errorf("failed to schedule %s: %w", taskType, err)
	}
	return nil
}

func (q *Queue) encode(taskType string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload for %s: %w", taskType, err)
	}
	task := Task{
		ID:         uuid.New().String(),
		Type:       taskType,
		Payload:    body,
		EnqueuedAt: time.Now(),
	}
	data, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task %s: %w", taskType, err)
	}
	return data, nil
}

// Start launches the worker pool and the delayed-task promoter
func (q *Queue) Start(ctx context.Context) {
	ctx, q.cancel = context.WithCancel(ctx)

	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}

	q.wg.Add(1)
	go q.promoter(ctx)

	q.log.Info("Task queue started", "workers", q.cfg.Workers)
}

// Stop cancels workers and waits for in-flight tasks to finish
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	q.wg.Wait()
	q.log.Info("Task queue stopped")
}

func (q *Queue) worker(ctx context.Context, id int) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := q.client.BRPop(ctx, q.cfg.PollTimeout, readyKey).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
				continue
			}
			q.log.Error("Failed to poll task queue", "worker", id, "error", err)
			time.Sleep(time.Second)
			continue
		}
		if len(res) < 2 {
			continue
		}

		q.dispatch(ctx, []byte(res[1]))
	}
}

// promoter moves due delayed tasks onto the ready list. ZRem gates the push
// so concurrent promoters never deliver the same member twice.
func (q *Queue) promoter(ctx context.Context) {
	defer q.wg.Done()

	ticker := time.NewTicker(promoteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		now := fmt.Sprintf("%d", time.Now().UnixMilli())
		members, err := q.client.ZRangeByScore(ctx, delayedKey, &redis.ZRangeBy{
			Min: "-inf", Max: now, Count: 100,
		}).Result()
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				q.log.Error("Failed to read delayed tasks", "error", err)
			}
			continue
		}

		for _, member := range members {
			removed, err := q.client.ZRem(ctx, delayedKey, member).Result()
			if err != nil || removed == 0 {
				continue
			}
			if err := q.client.LPush(ctx, readyKey, member).Err(); err != nil {
				q.log.Error("Failed to promote delayed task", "error", err)
			}
		}
	}
}

// dispatch runs one task and records its terminal outcome. Handler errors
// never propagate past the task boundary.
func (q *Queue) dispatch(ctx context.Context, data []byte) {
	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		q.log.Error("Dropping malformed task", "error", err)
		return
	}

	q.mu.RLock()
	handler, ok := q.handlers[task.Type]
	q.mu.RUnlock()
	if !ok {
		q.log.Error("No handler registered for task", "type", task.Type, "task_id", task.ID)
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			q.log.Error("Task panicked", "type", task.Type, "task_id", task.ID, "panic", fmt.Sprintf("%v", rec))
		}
	}()

	start := time.Now()
	err := handler(ctx, task.Payload)

	switch {
	case err == nil:
		q.log.Info("Task completed", "type", task.Type, "task_id", task.ID, "outcome", "success", "duration", time.Since(start).String())
	case errors.Is(err, ErrSkip):
		q.log.Info("Task completed", "type", task.Type, "task_id", task.ID, "outcome", "no-op")
	default:
		q.log.Error("Task failed", "type", task.Type, "task_id", task.ID, "outcome", "failed", "error", err)
	}
}
