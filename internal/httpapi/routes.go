package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/DoyleJ11/nowserving/internal/hub"
	"github.com/DoyleJ11/nowserving/internal/ws"
)

type Options struct {
	AllowedOrigin      string
	LoginRatePerMinute float64
	LoginBurst         int
	Clock              clockwork.Clock
}

func SetupRoutes(h *hub.Hub, a Authenticator, log *zap.Logger, opts Options) http.Handler {
	log = log.Named("http")
	patterns, skipVerify := originPatterns(opts.AllowedOrigin)
	limiter := newLoginLimiter(opts.LoginRatePerMinute, opts.LoginBurst, opts.Clock)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(withCORS(opts.AllowedOrigin))

	// Public routes
	r.Get("/health", Health)
	r.Get("/healthz", Healthz)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", ws.Handler(h, a, log, ws.Options{
		OriginPatterns:     patterns,
		InsecureSkipVerify: skipVerify,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", Login(a, limiter, log))
		r.Get("/state", State(h))
	})
	return r
}
