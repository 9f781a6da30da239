package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rickgao/union-data/internal/config"
	"github.com/rickgao/union-data/internal/merge"
	"github.com/rickgao/union-data/internal/model"
)

// AggregateReader is the read side of the aggregate store.
type AggregateReader interface {
	Get(ctx context.Context, id model.AggregateID) (*model.Aggregate, error)
	FindByIDs(ctx context.Context, ids []model.AggregateID) ([]*model.Aggregate, error)
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Deps are the collaborators behind the API. Nil merge engines disable their
// listing endpoint.
type Deps struct {
	Items       *merge.Engine[model.Item]
	Ownerships  *merge.Engine[model.Ownership]
	Collections *merge.Engine[model.Collection]
	Activities  *merge.Engine[model.Activity]
	Aggregates  AggregateReader
	Checks      map[string]HealthCheck
}

// Server is the HTTP read API.
type Server struct {
	cfg    config.HTTPConfig
	deps   Deps
	logger *slog.Logger
	router *gin.Engine
}

// New builds the router. gin's mode is process global, so it is set here
// from cfg.Mode when non-empty.
func New(cfg config.HTTPConfig, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}

	s := &Server{cfg: cfg, deps: deps, logger: logger}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	r.GET("/health", s.health)
	r.GET("/version", s.version)

	v := r.Group("/v0.1")
	if deps.Items != nil {
		v.GET("/items/all", s.listItems)
	}
	if deps.Ownerships != nil {
		v.GET("/ownerships/all", s.listOwnerships)
	}
	if deps.Collections != nil {
		v.GET("/collections/all", s.listCollections)
	}
	if deps.Activities != nil {
		v.GET("/activities/all", s.listActivities)
	}
	if deps.Aggregates != nil {
		v.GET("/aggregates/:kind/:id", s.getAggregate)
	}

	s.router = r
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on cfg.Addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("shutting down http server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// requestLogger logs one line per request.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := slog.LevelDebug
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}
		logger.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"duration", time.Since(start),
		)
	}
}
