package handler

import (
	"net/http"
	"sync"

	"bloodbank-ledger/bootstrap"

	"github.com/rs/zerolog/log"
)

var (
	once    sync.Once
	app     http.Handler
	initErr error
)

// Handler is the serverless entry point. The app is built on the first
// request; a failed build answers 503 on every request of this instance.
func Handler(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		app, initErr = bootstrap.Handler()
		if initErr != nil {
			log.Error().Err(initErr).Msg("app create")
		}
	})
	if initErr != nil {
		http.Error(w, `{"status":"error","error":{"message":"Service unavailable","statusCode":503}}`, http.StatusServiceUnavailable)
		return
	}
	r.RequestURI = r.URL.String()
	app.ServeHTTP(w, r)
}
