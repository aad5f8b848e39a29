// Package httpapi exposes the Mini App HTTP API, health and metrics endpoints.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"ai_trade_gateway/internal/logging"
	"ai_trade_gateway/internal/metrics"
)

// RouterDeps groups the collaborators of NewRouter.
type RouterDeps struct {
	Authorizer        Authenticator
	Sessions          SessionParser
	Health            http.Handler
	Metrics           http.Handler
	Recorder          metrics.Recorder
	RateLimiter       *RateLimiter
	CORSAllowedOrigin string
	Logger            *logrus.Entry
}

// NewRouter builds the router.
//
// Middleware order:
//
//	RealIP -> RequestID -> Logging -> Recovery -> CORS
//
// The rate limiter applies to POST /api/auth only. /healthz and /metrics sit
// outside CORS.
func NewRouter(deps RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Component("httpapi")
	}
	recorder := deps.Recorder
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	origin := deps.CORSAllowedOrigin
	if origin == "" {
		origin = "*"
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(newRequestIDMiddleware())
	r.Use(newLoggingMiddleware(logger, recorder))
	r.Use(newRecoveryMiddleware(logger))

	if deps.Health != nil {
		r.Method(http.MethodGet, "/healthz", deps.Health)
	}
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	authHandler := NewAuthHandler(deps.Authorizer, logger)
	sessionHandler := NewSessionHandler(deps.Sessions)

	r.Route("/api", func(r chi.Router) {
		r.Use(newCORSMiddleware(origin))

		if deps.RateLimiter != nil {
			r.With(deps.RateLimiter.Middleware()).Post("/auth", authHandler.Authenticate)
		} else {
			r.Post("/auth", authHandler.Authenticate)
		}

		r.Get("/session", sessionHandler.Current)
	})

	return r
}
