package middleware

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// Redis keys for the shared request counters read by /health/json.
const (
	KeyReqTotal  = "health:global:req_total"
	KeyReqErrors = "health:global:req_errors"
	KeyResTime   = "health:global:res_time_total"
	KeyResCount  = "health:global:res_count"
	KeyStartTime = "health:global:start_time"
	KeyLastReq   = "health:global:last_request"
	KeyErrorLog  = "health:global:error_log"
)

// ErrorLogSize caps the error log list.
const ErrorLogSize = 50

// HealthMarker records request stats in Redis for /health/json. Health,
// metrics and favicon requests are not counted. With a nil client it is a
// pass-through. Each phase is one pipelined round trip.
func HealthMarker(rdb *redis.Client) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if rdb == nil || skipHealthMarker(c.Path()) {
			return c.Next()
		}

		ctx := context.Background()
		start := time.Now()
		last, _ := json.Marshal(fiber.Map{
			"time":     start.UTC(),
			"ip":       c.IP(),
			"path":     c.OriginalURL(),
			"method":   c.Method(),
			"trace_id": GetTraceID(c),
		})
		pipe := rdb.Pipeline()
		pipe.Set(ctx, KeyLastReq, last, 0)
		pipe.Incr(ctx, KeyReqTotal)
		_, _ = pipe.Exec(ctx)

		err := c.Next()

		status := c.Response().StatusCode()
		pipe = rdb.TxPipeline()
		pipe.Incr(ctx, KeyResCount)
		pipe.IncrByFloat(ctx, KeyResTime, float64(time.Since(start).Milliseconds()))
		if status >= fiber.StatusInternalServerError {
			entry, _ := json.Marshal(fiber.Map{
				"time":     time.Now().UTC(),
				"method":   c.Method(),
				"path":     c.OriginalURL(),
				"status":   status,
				"trace_id": GetTraceID(c),
			})
			pipe.Incr(ctx, KeyReqErrors)
			pipe.LPush(ctx, KeyErrorLog, entry)
			pipe.LTrim(ctx, KeyErrorLog, 0, ErrorLogSize-1)
		}
		_, _ = pipe.Exec(ctx)
		return err
	}
}

func skipHealthMarker(path string) bool {
	if path == "/" {
		return true
	}
	for _, prefix := range []string{"/health", "/metrics", "/favicon", "/reset"} {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
