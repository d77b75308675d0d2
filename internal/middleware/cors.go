package middleware

import (
	"strings"

	"bloodbank-ledger/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// CORSConfig holds CORS configuration. AllowedSuffix may list several
// comma-separated suffixes (".bloodbank.org,.bloodbank.dev").
type CORSConfig struct {
	AllowedSuffix string
	DevPassword   string
}

const (
	corsAllowHeaders  = "Content-Type, dev-password, Idempotency-Key, X-Trace-Id"
	corsAllowMethods  = "GET, POST, OPTIONS"
	corsExposeHeaders = "X-Trace-Id"
)

// CORS allows requests without an Origin, origins matching a suffix,
// localhost during development, and callers presenting the dev-password
// header. Allowed preflights are answered here with 204.
func CORS(cfg CORSConfig) fiber.Handler {
	suffixes := splitSuffixes(cfg.AllowedSuffix)
	return func(c *fiber.Ctx) error {
		origin := c.Get("Origin")
		if origin == "" {
			return c.Next()
		}
		if !originAllowed(origin, suffixes) && (cfg.DevPassword == "" || c.Get("dev-password") != cfg.DevPassword) {
			return response.Error(c, "Not allowed by CORS", fiber.StatusForbidden, nil)
		}

		c.Set("Access-Control-Allow-Origin", origin)
		c.Set("Access-Control-Allow-Credentials", "true")
		c.Set("Access-Control-Allow-Headers", corsAllowHeaders)
		c.Set("Access-Control-Expose-Headers", corsExposeHeaders)
		c.Vary(fiber.HeaderOrigin)
		if c.Method() == fiber.MethodOptions {
			c.Set("Access-Control-Allow-Methods", corsAllowMethods)
			return c.SendStatus(fiber.StatusNoContent)
		}
		return c.Next()
	}
}

func originAllowed(origin string, suffixes []string) bool {
	origin = strings.ToLower(origin)
	if strings.HasPrefix(origin, "http://localhost:") || strings.HasPrefix(origin, "http://127.0.0.1:") {
		return true
	}
	for _, s := range suffixes {
		if strings.HasSuffix(origin, s) {
			return true
		}
	}
	return false
}

func splitSuffixes(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
