package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"perpRiskBot/internal/app"
	"perpRiskBot/internal/domain"
	"perpRiskBot/internal/execution"
	"perpRiskBot/internal/ports"
)

const (
	defaultTradesLimit = 50
	defaultEventsLimit = 100
	maxListLimit       = 1000
	shutdownTimeout    = 5 * time.Second
)

// Bot is the engine control the HTTP surface drives.
type Bot interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context)
	Status() app.Status
}

// Server exposes the control surface over HTTP.
type Server struct {
	addr     string
	bot      Bot
	settings ports.SettingsRepository
	trades   ports.TradeRepository
	events   ports.EventRepository
	journal  *execution.Journal
	metrics  http.Handler
	logger   ports.Logger
	router   *gin.Engine
}

// Config holds server dependencies. MetricsHandler may be nil.
type Config struct {
	Addr           string
	Bot            Bot
	Store          ports.Persistence
	Journal        *execution.Journal
	MetricsHandler http.Handler
	Logger         ports.Logger
}

// NewServer builds the router.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Bot == nil || cfg.Store == nil || cfg.Journal == nil || cfg.Logger == nil {
		return nil, errors.New("missing required dependencies for HTTP server")
	}
	s := &Server{
		addr:     cfg.Addr,
		bot:      cfg.Bot,
		settings: cfg.Store,
		trades:   cfg.Store,
		events:   cfg.Store,
		journal:  cfg.Journal,
		metrics:  cfg.MetricsHandler,
		logger:   cfg.Logger,
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	s.setupRoutes(r)
	s.router = r
	return s, nil
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes(r *gin.Engine) {
	r.GET("/health", s.handleHealth)
	r.GET("/settings", s.handleGetSettings)
	r.POST("/settings", s.handleUpdateSettings)
	r.GET("/trades", s.handleListTrades)
	r.GET("/events", s.handleListEvents)

	bot := r.Group("/bot")
	{
		bot.POST("/start", s.handleStart)
		bot.POST("/stop", s.handleStop)
		bot.GET("/status", s.handleStatus)
	}

	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics))
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "Starting HTTP server", map[string]interface{}{"addr": s.addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	s.logger.Info(shutdownCtx, "Shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug(c.Request.Context(), "HTTP request", map[string]interface{}{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		})
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleGetSettings(c *gin.Context) {
	st, err := s.settings.GetOrCreateSettings(c.Request.Context())
	if err != nil {
		s.fail(c, err, "Failed to load settings")
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) handleUpdateSettings(c *gin.Context) {
	var patch domain.SettingsPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if patch.IsEmpty() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no settings fields in request"})
		return
	}

	ctx := c.Request.Context()
	st, err := s.settings.UpdateSettings(ctx, patch)
	if err != nil {
		if errors.Is(err, ports.ErrInvalidRequest) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s.fail(c, err, "Failed to update settings")
		return
	}

	payload, _ := json.Marshal(patch)
	s.journal.Record(ctx, domain.LevelInfo, domain.EventSettingsUpdated, string(payload))
	c.JSON(http.StatusOK, st)
}

func (s *Server) handleListTrades(c *gin.Context) {
	limit, ok := parseLimit(c, defaultTradesLimit)
	if !ok {
		return
	}
	trades, err := s.trades.ListTrades(c.Request.Context(), limit)
	if err != nil {
		s.fail(c, err, "Failed to list trades")
		return
	}
	c.JSON(http.StatusOK, trades)
}

func (s *Server) handleListEvents(c *gin.Context) {
	limit, ok := parseLimit(c, defaultEventsLimit)
	if !ok {
		return
	}
	events, err := s.events.ListEvents(c.Request.Context(), limit)
	if err != nil {
		s.fail(c, err, "Failed to list events")
		return
	}
	c.JSON(http.StatusOK, events)
}

func (s *Server) handleStart(c *gin.Context) {
	if err := s.bot.Start(c.Request.Context()); err != nil {
		s.fail(c, err, "Failed to start bot")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "started"})
}

func (s *Server) handleStop(c *gin.Context) {
	s.bot.Stop(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.bot.Status())
}

func (s *Server) fail(c *gin.Context, err error, msg string) {
	s.logger.Error(c.Request.Context(), err, msg, map[string]interface{}{"path": c.FullPath()})
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

// parseLimit reads ?limit=, writing a 400 response when it is malformed.
func parseLimit(c *gin.Context, def int) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return 0, false
	}
	if n > maxListLimit {
		n = maxListLimit
	}
	return n, true
}
