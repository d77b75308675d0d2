// Package bootstrap builds the HTTP handler for serverless entry points
// that live outside the module's internal tree.
package bootstrap

import (
	"net/http"

	"bloodbank-ledger/internal/config"
	"bloodbank-ledger/internal/interfaces/router"

	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/rs/zerolog/log"
)

// Handler loads config, builds the app and wraps it as an http.Handler.
func Handler() (http.Handler, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	app, _, rdb, err := router.CreateApp(cfg)
	if err != nil {
		return nil, err
	}
	log.Info().Str("env", cfg.Env).Bool("redis", rdb != nil).Msg("serverless handler ready")
	return adaptor.FiberApp(app), nil
}
