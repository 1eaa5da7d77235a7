// Package server exposes the ops surface: job submission and polling,
// tool listing, health, metrics scraping, and the websocket event feed.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"riviera/internal/batch"
	"riviera/internal/events"
	"riviera/internal/logging"
	"riviera/internal/tool"
	"riviera/internal/utils/id"
)

// Config configures the HTTP server.
type Config struct {
	Addr string
	CORS bool
}

// Server wires the coordinator, registry and event hub behind HTTP.
type Server struct {
	coordinator *batch.Coordinator
	registry    *tool.Registry
	hub         *events.Hub
	logger      logging.Logger

	engine     *gin.Engine
	httpServer *http.Server
	upgrader   websocket.Upgrader
}

func New(cfg Config, coordinator *batch.Coordinator, registry *tool.Registry, hub *events.Hub, logger logging.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	if cfg.CORS {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Requested-With"}
		corsConfig.AllowWebSockets = true
		engine.Use(cors.New(corsConfig))
	}

	s := &Server{
		coordinator: coordinator,
		registry:    registry,
		hub:         hub,
		logger:      logging.OrNop(logger),
		engine:      engine,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	s.routes()

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.engine.GET("/ws", s.handleWebSocket)

	api := s.engine.Group("/api")
	{
		api.GET("/tools", s.handleListTools)
		api.POST("/jobs", s.handleSubmitJob)
		api.GET("/jobs", s.handleListJobs)
		api.POST("/jobs/:id/check", s.handleCheckJob)
		api.POST("/jobs/:id/results-processed", s.handleMarkProcessed)
	}
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("ops server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and drops websocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.hub != nil {
		s.hub.Close()
	}
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleListTools(c *gin.Context) {
	defs := s.registry.DefinitionsWithExternal()
	c.JSON(http.StatusOK, gin.H{"tools": defs, "count": len(defs)})
}

type submitJobRequest struct {
	CollectionType  string   `json:"collection_type" binding:"required"`
	Villages        []string `json:"villages"`
	WebsiteID       string   `json:"website_id" binding:"required"`
	ItemsPerVillage int      `json:"items_per_village"`
}

func (s *Server) handleSubmitJob(c *gin.Context) {
	var req submitJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Villages) == 0 {
		req.Villages = batch.Villages
	}

	job, err := s.coordinator.Submit(c.Request.Context(), batch.SubmitParams{
		CollectionType:  req.CollectionType,
		Villages:        req.Villages,
		WebsiteID:       req.WebsiteID,
		ItemsPerVillage: req.ItemsPerVillage,
	})
	if err != nil {
		status := http.StatusBadGateway
		if strings.Contains(err.Error(), "unknown collection type") {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, job)
}

func (s *Server) handleListJobs(c *gin.Context) {
	websiteID := c.Query("website_id")
	if websiteID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "website_id is required"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	jobs, err := s.coordinator.List(c.Request.Context(), websiteID, batch.ListFilter{
		Status:         c.Query("status"),
		CollectionType: c.Query("collection_type"),
		Limit:          limit,
		Offset:         offset,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "count": len(jobs)})
}

func (s *Server) handleCheckJob(c *gin.Context) {
	result, err := s.coordinator.CheckStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		status := http.StatusBadGateway
		if strings.Contains(err.Error(), "not found") {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"job":         result.Job,
		"completed":   result.Completed,
		"counts":      result.Counts,
		"results_url": result.ResultsURL,
	})
}

func (s *Server) handleMarkProcessed(c *gin.Context) {
	job, err := s.coordinator.MarkResultsProcessed(c.Request.Context(), c.Param("id"))
	if err != nil {
		status := http.StatusConflict
		if strings.Contains(err.Error(), "not found") {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) handleWebSocket(c *gin.Context) {
	if s.hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event feed disabled"})
		return
	}
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed: %v", err)
		return
	}
	clientID := id.NewRequestID()
	s.hub.Add(clientID, conn)

	// Reader loop only detects disconnects; clients never send.
	go func() {
		defer s.hub.Remove(clientID)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
