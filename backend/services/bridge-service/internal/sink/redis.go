package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"biotune/backend/services/bridge-service/internal/models"
)

// StatusSetter is the go-redis call the sink uses.
type StatusSetter interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisSink keeps the latest reading of each kind under one key.
type RedisSink struct {
	client StatusSetter
	prefix string
	ttl    time.Duration
}

// NewRedisSink returns a redis-backed sink; ttl 0 keeps keys forever.
func NewRedisSink(client StatusSetter, prefix string, ttl time.Duration) *RedisSink {
	return &RedisSink{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisSink) key(kind models.Kind) string {
	return fmt.Sprintf("%s:%s", s.prefix, kind)
}

// Name implements Sink.
func (s *RedisSink) Name() string { return DriverRedis }

// Upload implements Sink.
func (s *RedisSink) Upload(ctx context.Context, r models.Reading) error {
	data, err := json.Marshal(r)
	if err != nil {
		return uploadFailed(s.Name(), err)
	}
	if err := s.client.Set(ctx, s.key(r.Kind), data, s.ttl).Err(); err != nil {
		return uploadFailed(s.Name(), err)
	}
	return nil
}

var _ Sink = (*RedisSink)(nil)
