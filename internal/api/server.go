package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"mt5-fvg-bot/internal/controller"
	"mt5-fvg-bot/internal/events"
)

// Config holds HTTP server settings.
type Config struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// DefaultConfig binds to localhost only.
func DefaultConfig() Config {
	return Config{Host: "127.0.0.1", Port: 8080}
}

// Server exposes the controller over HTTP and WebSocket.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	ctrl       *controller.Controller
	hub        *WSHub
	logger     zerolog.Logger
}

// NewServer wires routes and the WebSocket hub.
func NewServer(cfg Config, ctrl *controller.Controller, bus *events.Bus, logger zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	s := &Server{
		router: router,
		ctrl:   ctrl,
		hub:    NewWSHub(bus, logger),
		logger: logger.With().Str("component", "api").Logger(),
	}
	s.routes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/ws", s.hub.handleWS)

	apiGroup := s.router.Group("/api")
	{
		apiGroup.GET("/dashboard", s.handleDashboard)
		system := apiGroup.Group("/system")
		{
			system.POST("/start", s.handleStart)
			system.POST("/pause", s.handlePause)
			system.POST("/resume", s.handleResume)
			system.POST("/emergency-stop", s.handleEmergencyStop)
			system.POST("/reset", s.handleReset)
		}
	}
}

// Start runs the hub and the HTTP listener. Blocks until the listener
// stops.
func (s *Server) Start() error {
	go s.hub.Run()
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("API server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"state":      string(s.ctrl.State()),
		"ws_clients": s.hub.ClientCount(),
		"time":       time.Now().UTC(),
	})
}

func (s *Server) handleDashboard(c *gin.Context) {
	c.JSON(http.StatusOK, s.ctrl.DashboardSnapshot())
}

func (s *Server) handleStart(c *gin.Context) {
	s.transitionResponse(c, s.ctrl.Start())
}

func (s *Server) handlePause(c *gin.Context) {
	s.transitionResponse(c, s.ctrl.Pause())
}

func (s *Server) handleResume(c *gin.Context) {
	s.transitionResponse(c, s.ctrl.Resume())
}

func (s *Server) handleEmergencyStop(c *gin.Context) {
	var body struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&body)
	if body.Reason == "" {
		body.Reason = "operator request"
	}
	s.ctrl.EmergencyStop(body.Reason)
	c.JSON(http.StatusOK, gin.H{"state": string(s.ctrl.State())})
}

func (s *Server) handleReset(c *gin.Context) {
	s.transitionResponse(c, s.ctrl.Reset())
}

func (s *Server) transitionResponse(c *gin.Context, err error) {
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{
			"error": err.Error(),
			"state": string(s.ctrl.State()),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": string(s.ctrl.State())})
}
