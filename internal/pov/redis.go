package pov

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	VerdictsKey     = "pov:%s:%s:verdicts" // project, harness
	CrashesKey      = "pov:%s:crashes"     // project
	TaskTraceCtxKey = "global:trace_context:%s"
)

// RedisRecorder appends verdicts to per-harness lists and keeps the set of
// crashing verdict ids per project.
type RedisRecorder struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisRecorder(client *redis.Client, logger *zap.Logger) *RedisRecorder {
	if client == nil {
		return nil
	}
	return &RedisRecorder{client: client, logger: logger.Named("redis")}
}

func (r *RedisRecorder) Name() string { return "redis" }

func (r *RedisRecorder) Record(ctx context.Context, v *Verdict) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal verdict: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, fmt.Sprintf(VerdictsKey, v.ProjectID, v.Harness), body)
	if v.Crashed {
		pipe.SAdd(ctx, fmt.Sprintf(CrashesKey, v.ProjectID), v.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record verdict in redis: %w", err)
	}
	return nil
}

// TraceContext returns the exported trace stored for the project, if any.
func (r *RedisRecorder) TraceContext(ctx context.Context, projectID string) string {
	val, err := r.client.Get(ctx, fmt.Sprintf(TaskTraceCtxKey, projectID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("Failed to get trace context from Redis", zap.Error(err))
		}
		return ""
	}
	return val
}
