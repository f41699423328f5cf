package analytics

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/djlord-it/botgraph/internal/domain"
)

const keyPrefix = "botgraph"

// peakScript raises the peak_total field of KEYS[1] to ARGV[1] if larger.
var peakScript = redis.NewScript(`
local cur = tonumber(redis.call('HGET', KEYS[1], 'peak_total') or '-1')
local v = tonumber(ARGV[1])
if v > cur then
  redis.call('HSET', KEYS[1], 'peak_total', ARGV[1])
end
return 1
`)

// RedisSink keeps one hash per time bucket with the latest counts, the
// bucket's peak total and the number of samples seen.
type RedisSink struct {
	client    *redis.Client
	window    time.Duration
	retention time.Duration
}

func NewRedisSink(client *redis.Client, window, retention time.Duration) *RedisSink {
	return &RedisSink{client: client, window: window, retention: retention}
}

func (s *RedisSink) RecordSample(ctx context.Context, sample domain.Sample) error {
	key := buildKey(sample.CapturedAt, s.window)

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key,
		"total", formatFloat(sample.Total),
		"humans", formatFloat(sample.Humans),
		"malicious", formatFloat(sample.Malicious),
		"impact", formatFloat(sample.Impact),
		"last_label", sample.Label,
	)
	pipe.HIncrBy(ctx, key, "samples", 1)
	peakScript.Eval(ctx, pipe, []string{key}, formatFloat(sample.Total))
	pipe.Expire(ctx, key, s.retention)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline: %w", err)
	}
	return nil
}

// Bucket returns the hash for the bucket containing t.
func (s *RedisSink) Bucket(ctx context.Context, t time.Time) (map[string]string, error) {
	res, err := s.client.HGetAll(ctx, buildKey(t, s.window)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}
	return res, nil
}

// Ping checks the connection.
func (s *RedisSink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func buildKey(t time.Time, window time.Duration) string {
	return fmt.Sprintf("%s:samples:%s", keyPrefix, truncateToBucket(t, window))
}

func truncateToBucket(t time.Time, window time.Duration) string {
	t = t.UTC()
	switch window {
	case time.Minute:
		return t.Format("200601021504")
	case 5 * time.Minute:
		minute := (t.Minute() / 5) * 5
		return t.Format("2006010215") + fmt.Sprintf("%02d", minute)
	case time.Hour:
		return t.Format("2006010215")
	case 24 * time.Hour:
		return t.Format("20060102")
	default:
		return t.Format("200601021504")
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
