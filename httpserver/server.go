// Package httpserver exposes the classification pipeline over HTTP.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/maastricht-university/edmo-emotion/config"
	"github.com/maastricht-university/edmo-emotion/orchestrator"
)

type Options struct {
	Config   *config.Root
	Pipeline *orchestrator.Pipeline
	Logger   *logrus.Logger
}

type Server struct {
	cfg      *config.Root
	pipeline *orchestrator.Pipeline
	log      *logrus.Entry
	engine   *gin.Engine
	metrics  *Metrics
}

// New builds the gin engine with recovery, request id, access log, metrics
// and CORS middlewares.
func New(opts Options) (*Server, error) {
	if opts.Config == nil || opts.Pipeline == nil {
		return nil, fmt.Errorf("http server requires config and pipeline")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Server{
		cfg:      opts.Config,
		pipeline: opts.Pipeline,
		log:      logger.WithField("component", "http"),
	}

	if logger.IsLevelEnabled(logrus.DebugLevel) {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestID())
	engine.Use(loggingMiddleware(s.log))
	if s.cfg.Metrics.Enabled {
		m, err := NewMetrics(s.pipeline.Model().Backend)
		if err != nil {
			return nil, fmt.Errorf("metrics: %w", err)
		}
		s.metrics = m
		s.pipeline.WithObserver(m)
		engine.Use(m.middleware())
	}
	engine.Use(corsMiddleware(s.cfg.Server.CORSOrigins))
	_ = engine.SetTrustedProxies(nil)

	engine.GET("/health", s.health)
	engine.POST("/classify", s.classify)
	if s.metrics != nil {
		engine.GET(s.cfg.Metrics.Path, gin.WrapH(s.metrics.Handler()))
	}

	s.engine = engine
	return s, nil
}

func (s *Server) Handler() http.Handler { return s.engine }

// Listen serves on the configured address until ctx is cancelled.
func (s *Server) Listen(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve runs the server on ln and shuts it down gracefully once ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: s.cfg.Server.ReadHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.WithField("addr", ln.Addr().String()).Info("listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
		defer cancel()
		s.log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
