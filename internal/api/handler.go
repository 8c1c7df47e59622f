package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"execution-core/internal/engine"
	"execution-core/internal/events"
	"execution-core/internal/monitor"
)

// Server wires HTTP endpoints around the engine service.
type Server struct {
	Router  *gin.Engine
	Engine  engine.Service
	Bus     *events.Bus
	Metrics *monitor.SystemMetrics
	Logger  *zap.Logger

	JWTSecret  string
	APIKeyHash string // bcrypt hash of the key exchanged for tokens
	TokenTTL   time.Duration
}

// Options configures NewServer.
type Options struct {
	Engine  engine.Service
	Bus     *events.Bus
	Metrics *monitor.SystemMetrics
	Logger  *zap.Logger

	JWTSecret  string
	APIKeyHash string
	TokenTTL   time.Duration

	RateLimitPerSec float64
	RateLimitBurst  int
	RequestTimeout  time.Duration
}

func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 24 * time.Hour
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}

	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())                                                 // Panic recovery (first)
	r.Use(RequestIDMiddleware())                                          // Request ID tracking
	r.Use(RequestLogger(logger))                                          // Request logging (after ID is set)
	r.Use(RateLimitMiddleware(opts.RateLimitPerSec, opts.RateLimitBurst)) // Rate limiting
	r.Use(TimeoutMiddleware(opts.RequestTimeout))                         // Request deadline
	r.Use(CORSMiddleware())                                               // CORS (last before routes)

	s := &Server{
		Router:     r,
		Engine:     opts.Engine,
		Bus:        opts.Bus,
		Metrics:    opts.Metrics,
		Logger:     logger,
		JWTSecret:  opts.JWTSecret,
		APIKeyHash: opts.APIKeyHash,
		TokenTTL:   opts.TokenTTL,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/metrics", gin.WrapH(s.Metrics.Handler()))

	api := s.Router.Group("/api")
	{
		api.GET("/system/status", s.getSystemStatus)

		// Auth endpoints (no auth required)
		api.POST("/auth/token", s.issueToken)

		// Protected API
		protected := api.Group("")
		if s.JWTSecret != "" {
			protected.Use(AuthMiddleware(s.JWTSecret))
		}
		{
			protected.GET("/ws", s.websocket)

			// Bots
			protected.GET("/bots", s.listBots)
			protected.POST("/bots", s.registerBot)
			protected.GET("/bots/:id", s.getBot)
			protected.PUT("/bots/:id", s.reconfigureBot)
			protected.POST("/bots/:id/orders", s.openPosition)

			// Positions
			protected.GET("/positions/:ticket", s.getPosition)
			protected.GET("/positions/:ticket/profit", s.getProfit)
			protected.DELETE("/positions/:ticket", s.closePosition)
			protected.DELETE("/symbols/:symbol/positions", s.closeAllForSymbol)

			// Trailing stops
			protected.GET("/trailing", s.listTrailingStops)
			protected.POST("/positions/:ticket/trailing", s.startTrailingStop)
			protected.DELETE("/positions/:ticket/trailing", s.stopTrailingStop)

			// Account
			protected.GET("/account", s.getAccount)
			protected.GET("/account/balance", s.getBalance)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	status := s.Engine.GetSystemStatus(c.Request.Context())
	if !status.SessionUp {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "session_up": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "session_up": true})
}

func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
