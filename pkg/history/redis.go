package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix      = "netanomaly:"
	defaultRunTTL  = 7 * 24 * time.Hour
	defaultKeepIDs = 1000
)

// Redis stores run summaries as JSON: one key per run with a TTL, a "latest"
// key, and a capped list of recent run IDs.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	keep   int64
}

// NewRedis connects to the Redis server at url (redis://host:port/db).
func NewRedis(ctx context.Context, url string) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return NewRedisClient(client), nil
}

// NewRedisClient wraps an existing client.
func NewRedisClient(client *redis.Client) *Redis {
	return &Redis{
		client: client,
		ttl:    defaultRunTTL,
		keep:   defaultKeepIDs,
	}
}

// RunKey returns the key holding the summary of runID.
func RunKey(runID string) string {
	return keyPrefix + "run:" + runID
}

// LatestKey holds the most recent summary.
const LatestKey = keyPrefix + "run:latest"

// RunsKey is the list of recent run IDs, newest first.
const RunsKey = keyPrefix + "runs"

// Record implements Recorder.
func (r *Redis) Record(ctx context.Context, run Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encode run: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, RunKey(run.RunID), data, r.ttl)
	pipe.Set(ctx, LatestKey, data, 0)
	pipe.LPush(ctx, RunsKey, run.RunID)
	pipe.LTrim(ctx, RunsKey, 0, r.keep-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis record run %s: %w", run.RunID, err)
	}
	return nil
}

// Latest returns the most recently recorded run.
func (r *Redis) Latest(ctx context.Context) (Run, error) {
	var run Run
	data, err := r.client.Get(ctx, LatestKey).Bytes()
	if err != nil {
		return run, fmt.Errorf("redis latest run: %w", err)
	}
	if err := json.Unmarshal(data, &run); err != nil {
		return run, fmt.Errorf("decode run: %w", err)
	}
	return run, nil
}

// Close implements Recorder.
func (r *Redis) Close() error {
	return r.client.Close()
}
