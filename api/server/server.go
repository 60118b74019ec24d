package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"uptime/api/middleware"
	"uptime/internal/agent"
	"uptime/internal/alert"
	"uptime/internal/config"
	"uptime/internal/database"
	"uptime/internal/elasticsearch"
	"uptime/internal/history"
	"uptime/internal/logger"
	"uptime/internal/monitor"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Deps are the services the HTTP API drives. ES and Limiter may be nil.
type Deps struct {
	Store    *database.Store
	Monitors *monitor.Service
	History  *history.Service
	Alerts   *alert.Service
	Agents   *agent.Service
	ES       *elasticsearch.Client
	Limiter  *middleware.IPRateLimiter
}

type Server struct {
	router *gin.Engine
	Deps

	configPath string
	cfgMu      sync.RWMutex
	config     *config.Config
}

func NewServer(deps Deps, configPath string, cfg *config.Config) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger())

	// 请求处理超时 30 秒
	router.Use(func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})

	server := &Server{
		router:     router,
		Deps:       deps,
		configPath: configPath,
		config:     cfg,
	}
	server.setupRoutes()

	return server
}

func (s *Server) setupRoutes() {
	api := s.router.Group("/api/v1")
	if s.Limiter != nil {
		api.Use(s.Limiter.Middleware())
	}
	api.Use(middleware.Owner())

	{
		// Monitor management - all using POST
		api.POST("/monitor/add", s.addMonitor)
		api.POST("/monitor/list", s.listMonitors)
		api.POST("/monitor/get", s.getMonitor)
		api.POST("/monitor/update", s.updateMonitor)
		api.POST("/monitor/remove", s.removeMonitor)
		api.POST("/monitor/check", s.checkMonitor)
		api.POST("/monitor/history", s.monitorHistory)
		api.POST("/monitor/daily", s.monitorDaily)

		// Archived checks (Elasticsearch)
		api.POST("/logs/search", s.searchLogs)
		api.POST("/logs/stats", s.getLogStats)

		// Notification channels
		api.POST("/alert/channel/add", s.addChannel)
		api.POST("/alert/channel/list", s.listChannels)
		api.POST("/alert/channel/get", s.getChannel)
		api.POST("/alert/channel/update", s.updateChannel)
		api.POST("/alert/channel/remove", s.removeChannel)
		api.POST("/alert/channel/test", s.testChannel)

		// Notification templates
		api.POST("/alert/template/add", s.addTemplate)
		api.POST("/alert/template/list", s.listTemplates)
		api.POST("/alert/template/get", s.getTemplate)
		api.POST("/alert/template/update", s.updateTemplate)
		api.POST("/alert/template/remove", s.removeTemplate)

		// Notification settings and history
		api.POST("/alert/settings/list", s.listSettings)
		api.POST("/alert/settings/save", s.saveSettings)
		api.POST("/alert/settings/remove", s.removeSettings)
		api.POST("/alert/history/list", s.listNotificationHistory)

		// Agents
		api.POST("/agent/add", s.addAgent)
		api.POST("/agent/list", s.listAgents)
		api.POST("/agent/get", s.getAgent)
		api.POST("/agent/update", s.updateAgent)
		api.POST("/agent/remove", s.removeAgent)
		api.POST("/agent/report", s.reportAgent)
		api.POST("/agent/sweep", s.sweepAgents)

		// System Configuration
		api.GET("/config", s.getConfig)
		api.POST("/config", s.updateConfig)
	}

	s.router.GET("/health", s.healthCheck)
}

// Handler exposes the router, mainly for tests and http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", addr))
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) healthCheck(c *gin.Context) {
	if err := s.Store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// Common request types
type IDRequest struct {
	ID uint32 `json:"id" binding:"required"`
}

func bindID(c *gin.Context) (uint32, bool) {
	var req IDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return 0, false
	}
	return req.ID, true
}

// bindOptional binds a JSON body when one is present.
func bindOptional(c *gin.Context, obj interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(obj); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

// respondError maps service errors to status codes; anything unknown is
// logged and reported as msg.
func respondError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound),
		errors.Is(err, monitor.ErrMonitorNotFound),
		errors.Is(err, agent.ErrAgentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.Is(err, monitor.ErrCheckInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, monitor.ErrServiceStopped):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, alert.ErrUnsupportedChannel), errors.Is(err, alert.ErrInvalidChannelConfig):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}

// owned loads a record and hides it unless the caller created it.
func owned[T any](c *gin.Context, get func(context.Context, uint32) (*T, error), id uint32, ownerOf func(*T) uint32, what string) (*T, bool) {
	v, err := get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Failed to load "+what)
		return nil, false
	}
	if v == nil || ownerOf(v) != middleware.UserID(c) {
		c.JSON(http.StatusNotFound, gin.H{"error": what + " not found"})
		return nil, false
	}
	return v, true
}
