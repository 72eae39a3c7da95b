// SPDX-License-Identifier: MIT

// Package server is the HTTP and websocket bridge between the embedded video
// player and the orchestrator.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hapsync/internal/config"
	"hapsync/internal/log"
	"hapsync/internal/metrics"
	"hapsync/internal/orchestrator"
	"hapsync/internal/transport"
)

const shutdownTimeout = 5 * time.Second

// Player is the orchestrator surface driven by the player.
type Player interface {
	OnVideoDetected(ctx context.Context, url string) error
	OnPlaybackTick(t float64, paused bool)
	OnSeek(t float64)
	OnVideoEnded()
	Reset()
	Status() orchestrator.Status
	Notifications() <-chan orchestrator.Notification
}

// Options configures a Server.
type Options struct {
	Config config.ServerConfig
	Player Player
	// HapticHub, when set, is mounted at /haptic for websocket actuators.
	HapticHub *transport.Hub
	Debug     bool
	Logger    *log.Logger
}

type Server struct {
	opts   Options
	router *gin.Engine
	hub    *transport.Hub
	logger *log.Logger
}

// New builds the router. Nothing listens until Run.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.With("component", "server")
	}
	if !opts.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		opts:   opts,
		router: gin.New(),
		logger: opts.Logger,
	}
	s.hub = transport.NewHub(transport.HubOptions{
		Name:           "player",
		AllowedOrigins: opts.Config.AllowedOrigins,
		OnMessage:      s.handleMessage,
	})

	s.router.Use(gin.Recovery(), requestLogger(s.logger), corsMiddleware(opts.Config.AllowedOrigins))
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "hapsync"})
	})

	api := s.router.Group("/api")
	{
		api.POST("/video", s.postVideo)
		api.POST("/tick", s.postTick)
		api.POST("/seek", s.postSeek)
		api.POST("/ended", s.postEnded)
		api.POST("/reset", s.postReset)
		api.GET("/status", s.getStatus)
	}

	s.router.GET("/ws", gin.WrapH(s.hub.Handler()))
	if s.opts.HapticHub != nil {
		s.router.GET("/haptic", gin.WrapH(s.opts.HapticHub.Handler()))
	}
	if s.opts.Config.MetricsEnabled {
		metrics.Register()
		s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
}

// Handler exposes the router for embedding and tests.
func (s *Server) Handler() http.Handler { return s.router }

// Hub returns the player notification hub.
func (s *Server) Hub() *transport.Hub { return s.hub }

// Run serves until ctx is cancelled, forwarding orchestrator notifications
// to connected players.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Config.ListenAddress,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go s.pump(ctx)

	errc := make(chan error, 1)
	go func() {
		s.logger.Infof("listening on http://%s", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		s.hub.Close()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// pump broadcasts notifications until ctx is done.
func (s *Server) pump(ctx context.Context) {
	notes := s.opts.Player.Notifications()
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-notes:
			if err := s.hub.Send(n); err != nil {
				return
			}
		}
	}
}
