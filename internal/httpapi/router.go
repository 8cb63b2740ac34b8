// Package httpapi exposes the recommendation pipeline over HTTP.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"watchwise/internal/auth"
	"watchwise/internal/feedback"
	"watchwise/internal/metrics"
	"watchwise/internal/recommend"
)

type Options struct {
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// Server holds the services behind the routes.
type Server struct {
	recommend *recommend.Service
	feedback  *feedback.Service
	verifier  *auth.Verifier
}

func NewServer(rec *recommend.Service, fb *feedback.Service, verifier *auth.Verifier) *Server {
	return &Server{recommend: rec, feedback: fb, verifier: verifier}
}

// Router builds the chi router with CORS, per-IP rate limiting and
// request metrics.
func (s *Server) Router(opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(observe)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:     []string{"*"},
		AllowedMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:     []string{"Authorization", "Content-Type", "X-Client-Info", "Apikey"},
		AllowCredentials:   false,
		MaxAge:             86400,
		OptionsPassthrough: false,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		if opts.RateLimitRequests > 0 {
			r.Use(httprate.LimitByIP(opts.RateLimitRequests, opts.RateLimitWindow))
		}

		r.Group(func(r chi.Router) {
			r.Use(s.verifier.Optional)
			r.Post("/conversation/step", s.handleStep)
			r.Post("/recommendations", s.handleRecommend)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.verifier.Required)
			r.Post("/recommendations/{id}/rating", s.handleRating)
			r.Post("/recommendations/{id}/watched", s.handleWatched)
			r.Post("/embeddings", s.handleIngest)
			r.Get("/history", s.handleHistory)
		})
	})
	return r
}

// observe records latency by route pattern so ids don't explode label
// cardinality.
func observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.ObserveHTTP(r.Method, route, status, start)
		log.WithFields(log.Fields{
			"method":     r.Method,
			"route":      route,
			"status":     status,
			"duration":   time.Since(start).String(),
			"request_id": chimiddleware.GetReqID(r.Context()),
		}).Debug("request served")
	})
}
