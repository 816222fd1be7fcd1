// Package server is the HTTP persistence service: project CRUD scoped to a
// session user, share token issue and public lookup.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/chazu/stepwise/pkg/config"
	"github.com/chazu/stepwise/pkg/logger"
)

type RouterConfig struct {
	ProjectHandler *ProjectHandler
	AuthMiddleware *AuthMiddleware
	AllowOrigins   []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	origins := cfg.AllowOrigins
	if len(origins) == 0 {
		origins = config.Default().Server.AllowOrigins
	}

	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
		AllowWildcard:    true,
		CustomSchemas:    []string{"wails://"},
	}))

	// ===============
	// || Public    ||
	// ===============
	router.GET("/healthcheck", HealthCheck)
	api := router.Group("/api")
	api.GET("/public/:token", cfg.ProjectHandler.Public)

	// ===============
	// || Protected ||
	// ===============
	protected := api.Group("/")
	protected.Use(cfg.AuthMiddleware.RequireAuth())
	protected.GET("/projects", cfg.ProjectHandler.List)
	protected.POST("/projects", cfg.ProjectHandler.Create)
	protected.GET("/projects/:id", cfg.ProjectHandler.Get)
	protected.PUT("/projects/:id", cfg.ProjectHandler.Update)
	protected.DELETE("/projects/:id", cfg.ProjectHandler.Delete)
	protected.POST("/projects/:id/share", cfg.ProjectHandler.Share)

	return router
}

// Server owns the HTTP listener.
type Server struct {
	log    *logger.Logger
	http   *http.Server
	router *gin.Engine
}

func New(cfg config.ServerConfig, handler *ProjectHandler, sessions *Sessions, log *logger.Logger) *Server {
	router := NewRouter(RouterConfig{
		ProjectHandler: handler,
		AuthMiddleware: NewAuthMiddleware(log, sessions),
		AllowOrigins:   cfg.AllowOrigins,
	})
	return &Server{
		log:    log.With("service", "HTTPServer"),
		router: router,
		http: &http.Server{
			Addr:              cfg.Addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", s.http.Addr)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: listen: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	s.log.Info("server stopped")
	return nil
}
