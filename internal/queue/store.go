// Package queue implements the execution backend on Redis: an at-least-once
// job queue with late acknowledgement, the task-id-addressed result store,
// the shared blob store used by the market-data cache, worker heartbeats,
// and the fixed windows behind the HTTP rate limits.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tradeforge/engine/internal/model"
)

const (
	queueKey      = "execution_queue"
	processingKey = "execution_queue:processing"

	resultKeyPrefix    = "task_result_"
	heartbeatKeyPrefix = "engine_worker_"
	rateKeyPrefix      = "throttle_"
)

// Store is the Redis-backed execution backend. The job queue and worker
// heartbeats live on the broker; results, cached blobs, and rate counters
// live on the result backend, which may be the same instance.
type Store struct {
	broker    *redis.Client
	kv        *redis.Client
	resultTTL time.Duration
}

// New connects to the broker URL (redis://...). When resultURL names a
// different store it gets its own client; empty means the broker doubles
// as the result backend.
func New(brokerURL, resultURL string, resultTTL time.Duration) (*Store, error) {
	opts, err := redis.ParseURL(brokerURL)
	if err != nil {
		return nil, fmt.Errorf("parse broker url: %w", err)
	}
	broker := redis.NewClient(opts)

	kv := broker
	if resultURL != "" && resultURL != brokerURL {
		kvOpts, err := redis.ParseURL(resultURL)
		if err != nil {
			_ = broker.Close()
			return nil, fmt.Errorf("parse result backend url: %w", err)
		}
		kv = redis.NewClient(kvOpts)
	}

	if resultTTL <= 0 {
		resultTTL = time.Hour
	}
	return &Store{broker: broker, kv: kv, resultTTL: resultTTL}, nil
}

// Close releases the underlying connection pools.
func (s *Store) Close() error {
	err := s.broker.Close()
	if s.kv != s.broker {
		if kvErr := s.kv.Close(); err == nil {
			err = kvErr
		}
	}
	return err
}

// Ping reports liveness of the broker and, when separate, the result
// backend.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.broker.Ping(ctx).Err(); err != nil {
		return err
	}
	if s.kv != s.broker {
		return s.kv.Ping(ctx).Err()
	}
	return nil
}

// Enqueue pushes a job onto the execution queue.
func (s *Store) Enqueue(ctx context.Context, job model.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	return s.broker.LPush(ctx, queueKey, payload).Err()
}

// Dequeue moves the oldest job to the processing list and returns it along
// with the raw payload needed for Ack. A nil job means the wait timed out.
// A job that fails to decode is acked immediately so it cannot hot-loop.
func (s *Store) Dequeue(ctx context.Context, timeout time.Duration) (*model.Job, string, error) {
	raw, err := s.broker.BLMove(ctx, queueKey, processingKey, "RIGHT", "LEFT", timeout).Result()
	if err == redis.Nil {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	var job model.Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		_ = s.Ack(ctx, raw)
		return nil, "", fmt.Errorf("decode job payload: %w", err)
	}
	return &job, raw, nil
}

// Ack removes a delivered job from the processing list. Called only after
// the result is published, so a worker crash re-delivers the job.
func (s *Store) Ack(ctx context.Context, raw string) error {
	return s.broker.LRem(ctx, processingKey, 1, raw).Err()
}

// PublishResult writes the result record exactly once. The return value
// reports whether this call won the write; the store refuses overwrites so
// completion stays observable.
func (s *Store) PublishResult(ctx context.Context, taskID string, res model.TaskResult) (bool, error) {
	payload, err := json.Marshal(res)
	if err != nil {
		return false, fmt.Errorf("encode result: %w", err)
	}
	return s.kv.SetNX(ctx, resultKeyPrefix+taskID, payload, s.resultTTL).Result()
}

// GetResult returns the stored result, or nil while the task is pending.
func (s *Store) GetResult(ctx context.Context, taskID string) (*model.TaskResult, error) {
	raw, err := s.kv.Get(ctx, resultKeyPrefix+taskID).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var res model.TaskResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return &res, nil
}

// Heartbeat refreshes this worker's liveness key.
func (s *Store) Heartbeat(ctx context.Context, workerID string, ttl time.Duration) error {
	return s.broker.Set(ctx, heartbeatKeyPrefix+workerID, "alive", ttl).Err()
}

// WorkersAlive counts workers with a live heartbeat.
func (s *Store) WorkersAlive(ctx context.Context) (int, error) {
	var cursor uint64
	count := 0
	for {
		keys, next, err := s.broker.Scan(ctx, cursor, heartbeatKeyPrefix+"*", 100).Result()
		if err != nil {
			return 0, err
		}
		count += len(keys)
		cursor = next
		if cursor == 0 {
			return count, nil
		}
	}
}

// GetBlob implements marketdata.Blobs.
func (s *Store) GetBlob(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := s.kv.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

// SetBlobNX implements marketdata.Blobs with set-if-absent semantics.
func (s *Store) SetBlobNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return s.kv.SetNX(ctx, key, value, ttl).Result()
}

// RateAllow counts a hit against a fixed window and reports whether the
// caller is still under the limit.
func (s *Store) RateAllow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	k := rateKeyPrefix + key
	n, err := s.kv.Incr(ctx, k).Result()
	if err != nil {
		return false, err
	}
	if n == 1 {
		if err := s.kv.Expire(ctx, k, window).Err(); err != nil {
			return false, err
		}
	}
	return n <= int64(limit), nil
}
