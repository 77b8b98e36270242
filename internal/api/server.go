package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xela07ax/usagerisk/internal/engine"
	"github.com/xela07ax/usagerisk/internal/infra/auth"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type Server struct {
	router *chi.Mux
	logger *zap.Logger

	// Проверка токенов (RS256), выпущенных внешним auth-сервисом
	validator auth.TokenValidator

	predictions *PredictionHandler // /v1/predictions, /v1/mood
	limiter     *rate.Limiter
	gatherer    prometheus.Gatherer

	// ready — есть ли активная версия модели
	ready func() bool
}

type Options struct {
	RateLimit float64
	RateBurst int
	Gatherer  prometheus.Gatherer
	Ready     func() bool
}

// NewServer собирает HTTP API хоста со всеми зависимостями
func NewServer(svc PredictionService, validator auth.TokenValidator, opts Options, logger *zap.Logger) *Server {
	if opts.RateLimit <= 0 {
		opts.RateLimit = 20
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 10
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.NewRegistry()
	}
	if opts.Ready == nil {
		opts.Ready = func() bool { return true }
	}

	l := logger.Named("api")
	s := &Server{
		router:      chi.NewRouter(),
		logger:      l,
		validator:   validator,
		predictions: NewPredictionHandler(svc, l),
		limiter:     rate.NewLimiter(rate.Limit(opts.RateLimit), opts.RateBurst),
		gatherer:    opts.Gatherer,
		ready:       opts.Ready,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(engine.TracingMiddleware)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ ---
	r.Group(func(r chi.Router) {
		r.Get("/health", s.health)
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (Требуют RS256 токен) ---
	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(s.validator, s.logger))
		r.Use(engine.RateLimitMiddleware(s.limiter))

		r.Get("/v1/predictions/today", s.predictions.Today)
		r.Get("/v1/mood/description", s.predictions.Mood)
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	if !s.ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "no_model"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// ServeHTTP позволяет использовать Server как стандартный http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
