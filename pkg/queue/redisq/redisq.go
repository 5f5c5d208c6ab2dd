// Package redisq is a Redis Streams queue.Queue[T] built on the
// consumer-group pattern (XGroupCreateMkStream, XAdd, XReadGroup with
// Block, XAck, XClaim/XPendingExt for stale-message reclaim). It backs the
// detector-input and detector-output queues when the pipeline is deployed
// against a real, out-of-process detector model — the one process boundary
// in the system.
package redisq

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"tiledetect/pkg/queue"
)

// RedisQueue is a durable, consumer-group-backed queue.Queue[T].
type RedisQueue[T any] struct {
	client   *redis.Client
	stream   string
	group    string
	consumer string
	block    time.Duration
}

// New connects to addr and ensures the consumer group exists on stream,
// creating the stream if it does not exist yet.
func New[T any](addr, stream, group, consumer string) (*RedisQueue[T], error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redisq: ping failed: %w", err)
	}

	if err := client.XGroupCreateMkStream(ctx, stream, group, "$").Err(); err != nil {
		// BUSYGROUP means the group already exists, which is fine on restart.
		if err.Error() != "BUSYGROUP Consumer Group name already exists" {
			return nil, fmt.Errorf("redisq: ensure group: %w", err)
		}
	}

	return &RedisQueue[T]{
		client:   client,
		stream:   stream,
		group:    group,
		consumer: consumer,
		block:    5 * time.Second,
	}, nil
}

func (q *RedisQueue[T]) Put(ctx context.Context, msg queue.Message[T]) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("redisq: marshal: %w", err)
	}
	return q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]interface{}{"data": b},
	}).Err()
}

func (q *RedisQueue[T]) Get(ctx context.Context) (queue.Message[T], error) {
	for {
		res, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: q.consumer,
			Streams:  []string{q.stream, ">"},
			Count:    1,
			Block:    q.block,
		}).Result()
		if err != nil {
			if err == redis.Nil {
				select {
				case <-ctx.Done():
					return queue.Message[T]{}, ctx.Err()
				default:
					continue
				}
			}
			return queue.Message[T]{}, fmt.Errorf("redisq: read: %w", err)
		}
		if len(res) == 0 || len(res[0].Messages) == 0 {
			continue
		}

		raw := res[0].Messages[0]
		data := bytesFromValue(raw.Values["data"])

		var msg queue.Message[T]
		if err := json.Unmarshal(data, &msg); err != nil {
			return queue.Message[T]{}, fmt.Errorf("redisq: unmarshal: %w", err)
		}

		if err := q.client.XAck(ctx, q.stream, q.group, raw.ID).Err(); err != nil {
			return queue.Message[T]{}, fmt.Errorf("redisq: ack: %w", err)
		}

		return msg, nil
	}
}

// ClaimStale reclaims messages that have been pending (delivered but unacked)
// for longer than minIdle. The core pipeline never retries a tile on
// purpose — retries are the adapter's responsibility; this lives in the
// adapter layer, not the stages.
func (q *RedisQueue[T]) ClaimStale(ctx context.Context, minIdle time.Duration, count int64) ([]string, error) {
	pending, err := q.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: q.stream,
		Group:  q.group,
		Idle:   minIdle,
		Count:  count,
		Start:  "-",
		End:    "+",
	}).Result()
	if err != nil || len(pending) == 0 {
		return nil, err
	}

	ids := make([]string, 0, len(pending))
	for _, p := range pending {
		ids = append(ids, p.ID)
	}

	claimed, err := q.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: q.consumer,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		return nil, err
	}

	claimedIDs := make([]string, 0, len(claimed))
	for _, c := range claimed {
		claimedIDs = append(claimedIDs, c.ID)
	}
	return claimedIDs, nil
}

func (q *RedisQueue[T]) Close() error {
	return q.client.Close()
}

// StartReclaimLoop polls for stale pending entries every interval and claims
// them for this queue's consumer. It runs until ctx is canceled. Get reads
// only never-delivered entries and acks each one as soon as it is read, so
// entries claimed here are not delivered again through Get.
func (q *RedisQueue[T]) StartReclaimLoop(ctx context.Context, interval, minIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			claimed, err := q.ClaimStale(ctx, minIdle, 50)
			if err != nil {
				log.Printf("redisq: failed to claim stale entries on %s: %v", q.stream, err)
				continue
			}
			if len(claimed) > 0 {
				log.Printf("redisq: claimed %d stale entries for retry on %s", len(claimed), q.stream)
			}
		}
	}
}

func bytesFromValue(v interface{}) []byte {
	switch t := v.(type) {
	case string:
		return []byte(t)
	case []byte:
		return t
	default:
		b, _ := json.Marshal(t)
		return b
	}
}
