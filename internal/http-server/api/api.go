package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"

	"github.com/skylinesee/reeQute/internal/config"
	apierrors "github.com/skylinesee/reeQute/internal/http-server/handlers/errors"
	"github.com/skylinesee/reeQute/internal/http-server/handlers/health"
	"github.com/skylinesee/reeQute/internal/http-server/handlers/verification"
	"github.com/skylinesee/reeQute/internal/http-server/middleware/ratelimit"
	"github.com/skylinesee/reeQute/internal/http-server/middleware/requestlog"
	"github.com/skylinesee/reeQute/internal/http-server/middleware/timeout"
	"github.com/skylinesee/reeQute/lib/sl"
)

type Server struct {
	conf       *config.Config
	httpServer *http.Server
	limiter    *ratelimit.RateLimiter
	log        *slog.Logger
}

type Handler interface {
	verification.Core
	health.Core
}

// New builds the router. metrics may be nil.
func New(conf *config.Config, log *slog.Logger, handler Handler, metrics http.Handler) *Server {
	server := &Server{
		conf:    conf,
		limiter: ratelimit.PerMinute(conf.RateLimit.PerMinute, conf.RateLimit.Burst),
		log:     log.With(sl.Module("api.server")),
	}

	router := chi.NewRouter()
	router.Use(timeout.Timeout(5))
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(requestlog.New(log))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   conf.Cors.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	router.Use(render.SetContentType(render.ContentTypeJSON))

	router.NotFound(apierrors.NotFound(log))
	router.MethodNotAllowed(apierrors.NotAllowed(log))

	router.Get("/", health.Health(handler))
	if metrics != nil {
		router.Method(http.MethodGet, "/metrics", metrics)
	}
	router.Route("/api/verification", func(v chi.Router) {
		limit := []func(http.Handler) http.Handler{server.limiter.Limit}
		if conf.RateLimit.TrustProxy {
			limit = append([]func(http.Handler) http.Handler{middleware.RealIP}, limit...)
		}
		v.With(limit...).Post("/request", verification.Request(log, handler))
		v.Post("/verify", verification.Verify(log, handler))
		v.Post("/check-status", verification.CheckStatus(log, handler))
	})

	httpLog := slog.NewLogLogger(log.Handler(), slog.LevelError)
	server.httpServer = &http.Server{
		Handler:      router,
		ErrorLog:     httpLog,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server
}

func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until Shutdown is called or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	go s.limiter.Run(ctx)

	serverAddress := fmt.Sprintf("%s:%s", s.conf.Listen.BindIp, s.conf.Listen.Port)
	listener, err := net.Listen("tcp", serverAddress)
	if err != nil {
		return err
	}

	s.log.Info("starting api server", slog.String("address", serverAddress))

	err = s.httpServer.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("stopping api server")
	return s.httpServer.Shutdown(ctx)
}
