// Package audit provides sinks for the per-request audit trail.
package audit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/kozaktomas/vface/internal/database"
)

// DefaultStream is the stream key used when none is configured.
const DefaultStream = "vface:audit"

// RedisStream appends audit entries to a Redis stream.
type RedisStream struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisStream wraps an existing client. maxLen caps the stream length
// approximately; zero leaves it unbounded.
func NewRedisStream(client *redis.Client, stream string, maxLen int64) *RedisStream {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisStream{client: client, stream: stream, maxLen: maxLen}
}

// Dial connects to the Redis server at url and verifies it responds.
func Dial(ctx context.Context, url, stream string, maxLen int64) (*RedisStream, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewRedisStream(client, stream, maxLen), nil
}

// Record adds one stream entry per audit entry.
func (s *RedisStream) Record(ctx context.Context, entry database.AuditEntry) error {
	at := entry.At
	if at.IsZero() {
		at = time.Now()
	}
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"id":        uuid.NewString(),
			"tenant":    strconv.FormatInt(int64(entry.TenantID), 10),
			"operation": entry.Operation,
			"status":    strconv.Itoa(entry.Status),
			"request":   entry.Request,
			"response":  entry.Response,
			"at":        at.UTC().Format(time.RFC3339Nano),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}

// Stream returns the stream key entries are written to.
func (s *RedisStream) Stream() string {
	return s.stream
}

// Close closes the Redis connection.
func (s *RedisStream) Close() error {
	return s.client.Close()
}
