package health

import (
	"encoding/json"
	"strconv"
	"time"

	healthsvc "bloodbank-ledger/internal/application/health"
	"bloodbank-ledger/internal/middleware"
	"bloodbank-ledger/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// Handlers holds dependencies for health endpoints. Rdb may be nil.
type Handlers struct {
	Rdb            *redis.Client
	DB             healthsvc.DBPinger
	HealthAdminKey string
}

// Reset clears health stats in Redis. Requires query key=HEALTH_ADMIN_KEY.
func (h *Handlers) Reset(c *fiber.Ctx) error {
	key := c.Query("key")
	if key == "" || key != h.HealthAdminKey {
		return response.Error(c, "Unauthorized", fiber.StatusForbidden, nil)
	}
	if h.Rdb == nil {
		return response.Success(c, "Stats reset successfully", fiber.Map{"success": true, "redis": "not_configured"}, nil)
	}
	ctx := c.UserContext()
	keys := []string{middleware.KeyReqTotal, middleware.KeyReqErrors, middleware.KeyResTime, middleware.KeyResCount, middleware.KeyStartTime, middleware.KeyLastReq, middleware.KeyErrorLog}
	if err := h.Rdb.Del(ctx, keys...).Err(); err != nil {
		return response.FromError(c, err)
	}
	if err := h.Rdb.Set(ctx, middleware.KeyStartTime, strconv.FormatInt(time.Now().UnixMilli(), 10), 0).Err(); err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Stats reset successfully", fiber.Map{"success": true}, nil)
}

// JSON returns the service name, overall status, runtime, traffic and dependencies.
func (h *Handlers) JSON(c *fiber.Ctx) error {
	report := healthsvc.Collect(c.UserContext(), h.Rdb, h.DB)
	out := fiber.Map{
		"service":      healthsvc.ServiceName,
		"status":       report.Status,
		"runtime":      report.Runtime,
		"traffic":      report.Traffic,
		"dependencies": report.Dependencies,
	}
	if report.Status != "ok" {
		c.Status(fiber.StatusServiceUnavailable)
	}
	return c.JSON(out)
}

// Errors returns the most recent 5xx entries recorded by HealthMarker.
func (h *Handlers) Errors(c *fiber.Ctx) error {
	if h.Rdb == nil {
		return c.JSON([]interface{}{})
	}
	entries, err := h.Rdb.LRange(c.UserContext(), middleware.KeyErrorLog, 0, middleware.ErrorLogSize-1).Result()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON([]interface{}{})
	}
	out := make([]map[string]interface{}, 0, len(entries))
	for _, s := range entries {
		var m map[string]interface{}
		if json.Unmarshal([]byte(s), &m) == nil && m != nil {
			out = append(out, m)
		}
	}
	return c.JSON(out)
}
