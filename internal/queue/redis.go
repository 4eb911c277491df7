package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"registryd/pkg/platform/sentinel"
)

const (
	dnsRefreshKey    = "registryd:dns:refresh"
	asyncDeletionKey = "registryd:async:deletion"
)

// Redis backs both queues with Redis lists: producers LPUSH, consumers
// RPOP, giving FIFO order per queue. The DNS list is consumed by the
// out-of-scope DNS writer; the deletion list by the async worker.
type Redis struct {
	client *redis.Client
}

// NewRedis wraps an existing client; its lifetime belongs to the caller.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) EnqueueRefresh(ctx context.Context, task RefreshTask) error {
	return r.push(ctx, dnsRefreshKey, task)
}

func (r *Redis) EnqueueDeletion(ctx context.Context, task DeletionTask) error {
	return r.push(ctx, asyncDeletionKey, task)
}

func (r *Redis) DequeueDeletion(ctx context.Context) (DeletionTask, bool, error) {
	raw, err := r.client.RPop(ctx, asyncDeletionKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return DeletionTask{}, false, nil
	}
	if err != nil {
		return DeletionTask{}, false, fmt.Errorf("dequeue deletion: %w: %w", sentinel.ErrUnavailable, err)
	}
	var task DeletionTask
	if err := json.Unmarshal(raw, &task); err != nil {
		return DeletionTask{}, false, fmt.Errorf("decode deletion task: %w", err)
	}
	return task, true, nil
}

func (r *Redis) push(ctx context.Context, key string, task any) error {
	raw, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	if err := r.client.LPush(ctx, key, raw).Err(); err != nil {
		return fmt.Errorf("enqueue: %w: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}
