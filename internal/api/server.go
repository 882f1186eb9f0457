// Package api exposes the host's HTTP surface: login proxying, per-account
// profile storage, the verification code relay, and the side panel socket.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"agent-overlay-server/internal/codes"
	"agent-overlay-server/internal/config"
	"agent-overlay-server/internal/panel"
	"agent-overlay-server/internal/profile"
)

// Server assembles the Gin router over its backing stores.
type Server struct {
	cfg      config.APIConfig
	tokens   *TokenManager
	auth     AuthProvider
	profiles *profile.Store
	codes    *codes.Mailbox
	hub      *panel.Hub

	router *gin.Engine
	http   *http.Server
}

// New wires the API server. The auth provider defaults to the configured
// HTTP provider; tests inject a fake via WithAuthProvider.
func New(cfg config.APIConfig, profiles *profile.Store, mailbox *codes.Mailbox, hub *panel.Hub) *Server {
	s := &Server{
		cfg:      cfg,
		tokens:   NewTokenManager(cfg.JWTSecret),
		auth:     NewHTTPAuthProvider(cfg.AuthProviderURL),
		profiles: profiles,
		codes:    mailbox,
		hub:      hub,
	}
	s.router = s.buildRouter()
	return s
}

// WithAuthProvider swaps the auth provider. Must be called before Start.
func (s *Server) WithAuthProvider(p AuthProvider) *Server {
	s.auth = p
	return s
}

// Router exposes the Gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"*"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}
	if len(s.cfg.AllowedOrigins) > 0 {
		corsCfg.AllowOrigins = s.cfg.AllowedOrigins
	} else {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	}
	router.Use(cors.New(corsCfg))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/v1")
	{
		v1.POST("/auth/login", s.handleLogin)
		if s.hub != nil {
			v1.GET("/panel/ws", s.hub.HandleWebSocket)
		}
	}

	protected := v1.Group("")
	protected.Use(AuthMiddleware(s.tokens))
	{
		protected.GET("/profiles", s.handleListProfiles)
		protected.GET("/profiles/:key", s.handleGetProfile)
		protected.PUT("/profiles/:key", s.handlePutProfile)
		protected.DELETE("/profiles/:key", s.handleDeleteProfile)

		protected.POST("/codes", s.handlePublishCode)
		protected.GET("/codes/pending", s.handlePeekCode)
		protected.POST("/codes/consume", s.handleConsumeCode)
	}

	return router
}

// Start begins serving on the configured port. Blocks until the listener
// fails or Shutdown is called.
func (s *Server) Start() error {
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
