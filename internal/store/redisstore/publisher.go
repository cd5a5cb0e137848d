package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/suPer8Hu/cesar/internal/events"
)

const defaultStateTTL = 24 * time.Hour

// Publisher pushes job events to a per-job pub/sub channel and keeps the last
// event of each job under a key with a TTL for late subscribers.
type Publisher struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewPublisher(rdb *redis.Client, ttl time.Duration) *Publisher {
	if ttl <= 0 {
		ttl = defaultStateTTL
	}
	return &Publisher{rdb: rdb, ttl: ttl}
}

// Connect opens a client and checks it with PING.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}

func ProgressChannel(jobID string) string { return "cesar:progress:" + jobID }

func StateKey(jobID string) string { return "cesar:job:" + jobID + ":last" }

func (p *Publisher) Publish(ctx context.Context, e events.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	pipe := p.rdb.TxPipeline()
	pipe.Publish(ctx, ProgressChannel(e.JobID), payload)
	pipe.Set(ctx, StateKey(e.JobID), payload, p.ttl)
	_, err = pipe.Exec(ctx)
	return err
}
