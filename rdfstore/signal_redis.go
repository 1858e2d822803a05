package rdfstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisSink publishes signals over Redis Pub/Sub, one channel per signal
// name, grounded on the client construction and URL-parsing convention in
// the teacher's redis job queue.
type RedisSink struct {
	client *redis.Client
	prefix string
	logger *logrus.Logger
}

// RedisSinkConfig configures a RedisSink.
type RedisSinkConfig struct {
	RedisURL string
	Prefix   string
	Logger   *logrus.Logger
}

// NewRedisSink opens a client against RedisURL and verifies connectivity
// with a Ping before returning, matching NewQueue's fail-fast behavior.
func NewRedisSink(ctx context.Context, cfg RedisSinkConfig) (*RedisSink, error) {
	url := cfg.RedisURL
	if url == "" {
		url = "redis://localhost:6379/0"
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("rdfstore: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("rdfstore: connect to redis: %w", err)
	}
	return &RedisSink{client: client, prefix: cfg.Prefix, logger: cfg.Logger}, nil
}

// Emit publishes payload as JSON to "<prefix><channel>". A publish failure
// is logged, not propagated, so a dead Redis never blocks a data-path
// operation (spec §4.11).
func (s *RedisSink) Emit(ctx context.Context, channel string, payload map[string]interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("rdfstore: marshal signal payload: %w", err)
	}
	if err := s.client.Publish(ctx, s.prefix+channel, body).Err(); err != nil {
		if s.logger != nil {
			s.logger.WithError(err).WithField("channel", channel).Warn("rdfstore: signal publish failed")
		}
		return nil
	}
	return nil
}

// Close releases the underlying Redis client.
func (s *RedisSink) Close() error {
	return s.client.Close()
}
