package apiserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/taskbridge/marketplace/internal/auth"
	"github.com/taskbridge/marketplace/internal/config"
	handlers "github.com/taskbridge/marketplace/internal/handlers/v1alpha1"
	"github.com/taskbridge/marketplace/pkg/metrics"
	"github.com/taskbridge/marketplace/pkg/middleware"
	"go.uber.org/zap"
)

const (
	gracefulShutdownTimeout = 5 * time.Second
)

type Server struct {
	cfg      *config.Config
	handler  *handlers.ServiceHandler
	listener net.Listener
}

// New returns a new instance of the marketplace API server.
func New(
	cfg *config.Config,
	handler *handlers.ServiceHandler,
	listener net.Listener,
) *Server {
	return &Server{
		cfg:      cfg,
		handler:  handler,
		listener: listener,
	}
}

// Router builds the API router with its middleware stack.
func (s *Server) Router() (http.Handler, error) {
	authenticator, err := auth.NewAuthenticator(s.cfg.Service.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create authenticator: %w", err)
	}

	router := chi.NewRouter()

	metricMiddleware := metrics.NewMiddleware("api_server")
	metricMiddleware.MustRegister(nil)

	router.Use(
		metricMiddleware.Handler,
		cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.Service.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "DELETE", "HEAD", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: true,
			MaxAge:           300,
		}),
		chiMiddleware.RequestID,
		middleware.RequestID,
		middleware.Logger(),
		chiMiddleware.Recoverer,
		render.SetContentType(render.ContentTypeJSON),
	)

	s.handler.Routes(router, authenticator.Authenticator)
	return router, nil
}

func (s *Server) Run(ctx context.Context) error {
	zap.S().Named("api_server").Info("Initializing API server")

	router, err := s.Router()
	if err != nil {
		return err
	}

	srv := http.Server{Addr: s.cfg.Service.Address, Handler: router}

	go func() {
		<-ctx.Done()
		zap.S().Named("api_server").Infof("Shutdown signal received: %s", ctx.Err())
		ctxTimeout, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		srv.SetKeepAlivesEnabled(false)
		_ = srv.Shutdown(ctxTimeout)
		zap.S().Named("api_server").Info("api server terminated")
	}()

	zap.S().Named("api_server").Infof("Listening on %s...", s.listener.Addr().String())
	if err := srv.Serve(s.listener); err != nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
