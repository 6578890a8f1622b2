package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Queue is the dispatch channel between StartConversion and the worker pool.
// Payloads are opaque bytes (JSON-encoded ConversionTask).
type Queue interface {
	Enqueue(ctx context.Context, payload []byte) error
	ClaimBlocking(ctx context.Context, timeout time.Duration) (string, error)
	Ack(ctx context.Context, payload string) error
	RequeueStale(ctx context.Context, olderThan time.Duration, max int64) (int64, error)
}

// redisQueue implements a reliable queue on Redis lists.
// Claim: BRPOPLPUSH queue -> processing, claim time recorded in a hash
// Ack:   LREM from processing, claim record dropped
// A reaper returns unacked processing entries to the queue once their claim
// is older than the longest legitimate conversion, so a task held by a
// crashed worker is re-delivered while one still converting is left alone.
type redisQueue struct {
	rdb           *redis.Client
	queueKey      string
	processingKey string
	claimsKey     string
}

func NewRedisQueue(rdb *redis.Client, queueKey, processingKey string) Queue {
	return &redisQueue{
		rdb:           rdb,
		queueKey:      queueKey,
		processingKey: processingKey,
		claimsKey:     processingKey + ":claims",
	}
}

func (q *redisQueue) Enqueue(ctx context.Context, payload []byte) error {
	return q.rdb.LPush(ctx, q.queueKey, payload).Err()
}

// ClaimBlocking waits up to timeout for a task. timeout <= 0 blocks forever
// (worker daemon mode). Returns redis.Nil when nothing arrived in time.
func (q *redisQueue) ClaimBlocking(ctx context.Context, timeout time.Duration) (string, error) {
	if timeout < 0 {
		timeout = 0 // 0 means block indefinitely
	}
	payload, err := q.rdb.BRPopLPush(ctx, q.queueKey, q.processingKey, timeout).Result()
	if err != nil {
		return "", err
	}
	if err := q.rdb.HSet(ctx, q.claimsKey, payload, time.Now().Unix()).Err(); err != nil {
		return "", err
	}
	return payload, nil
}

func (q *redisQueue) Ack(ctx context.Context, payload string) error {
	if err := q.rdb.LRem(ctx, q.processingKey, 1, payload).Err(); err != nil {
		return err
	}
	return q.rdb.HDel(ctx, q.claimsKey, payload).Err()
}

// RequeueStale returns tasks to the queue whose claim is older than olderThan.
// Entries still inside the conversion window stay claimed; only tasks held by
// a crashed or restarted worker come back. At most max entries move per call.
func (q *redisQueue) RequeueStale(ctx context.Context, olderThan time.Duration, max int64) (int64, error) {
	entries, err := q.rdb.LRange(ctx, q.processingKey, 0, -1).Result()
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-olderThan)

	var moved int64
	for _, payload := range entries {
		if moved >= max {
			break
		}

		claimedAt, err := q.rdb.HGet(ctx, q.claimsKey, payload).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return moved, err
		}
		if !claimStale(claimedAt, cutoff) {
			continue
		}

		removed, err := q.rdb.LRem(ctx, q.processingKey, 1, payload).Result()
		if err != nil {
			return moved, err
		}
		if removed == 0 {
			continue // acked between LRANGE and now
		}
		if err := q.rdb.LPush(ctx, q.queueKey, payload).Err(); err != nil {
			return moved, err
		}
		_ = q.rdb.HDel(ctx, q.claimsKey, payload).Err()
		moved++
	}

	return moved, nil
}

// claimStale reports whether a claim taken at the given unix-seconds
// timestamp predates cutoff. A missing or unparseable timestamp counts as
// stale: such a claim has no worker that could still ack it.
func claimStale(claimedAt string, cutoff time.Time) bool {
	if claimedAt == "" {
		return true
	}
	sec, err := strconv.ParseInt(claimedAt, 10, 64)
	if err != nil {
		return true
	}
	return time.Unix(sec, 0).Before(cutoff)
}
