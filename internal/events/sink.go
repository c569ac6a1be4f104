package events

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/soundvault/backend/internal/cache"
	"github.com/soundvault/backend/internal/logger"
)

// LogSink writes security events to the structured log. The default sink
// when no external collector is configured.
type LogSink struct{}

// NewLogSink creates a log-backed sink.
func NewLogSink() *LogSink {
	return &LogSink{}
}

func (s *LogSink) Write(_ context.Context, event Event) error {
	fields := []zap.Field{
		zap.String("event_type", string(event.Type)),
		logger.WithIdentity(event.IdentityKey),
		zap.Time("event_time", event.Timestamp),
	}
	if event.IP != "" {
		fields = append(fields, logger.WithIP(event.IP))
	}
	if event.Endpoint != "" {
		fields = append(fields, zap.String("endpoint", event.Endpoint))
	}
	if event.UserAgent != "" {
		fields = append(fields, zap.String("user_agent", event.UserAgent))
	}
	if len(event.Metadata) > 0 {
		fields = append(fields, zap.Any("metadata", event.Metadata))
	}

	logger.Log.Info("security event", fields...)
	return nil
}

// RedisSink pushes security events onto a capped Redis list so an external
// consumer can drain them. LPUSH + LTRIM keeps the list bounded; the oldest
// unread events are discarded first, which matches best-effort delivery.
type RedisSink struct {
	client  *cache.RedisClient
	key     string
	maxSize int64
}

// NewRedisSink creates a Redis-backed sink writing to the given list key.
func NewRedisSink(client *cache.RedisClient, key string, maxSize int64) *RedisSink {
	if key == "" {
		key = "security_events"
	}
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &RedisSink{client: client, key: key, maxSize: maxSize}
}

func (s *RedisSink) Write(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := s.client.LPush(ctx, s.key, payload); err != nil {
		logger.Warn("Failed to push security event to Redis", zap.Error(err))
		return err
	}
	if err := s.client.LTrim(ctx, s.key, 0, s.maxSize-1); err != nil {
		logger.Warn("Failed to trim security event list", zap.Error(err))
	}
	return nil
}
