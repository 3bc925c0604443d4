// Package api serves cross-validation runs over HTTP
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gosurv/app"
	"gosurv/internal"
	"gosurv/internal/config"
)

// Server is the JSON API in front of the cross-validation service
type Server struct {
	router   *gin.Engine
	runs     *RunHandler
	gatherer prometheus.Gatherer
}

// NewServer wires the routes. gatherer backs /metrics; nil uses the default
// Prometheus registry.
func NewServer(service *app.CrossValidationService, cfg *config.Config, gatherer prometheus.Gatherer, logger *internal.Logger) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if logger == nil {
		logger = internal.NewDefaultLogger()
	}
	s := &Server{
		router:   gin.New(),
		runs:     NewRunHandler(service, cfg.Pipeline, cfg.Data, cfg.Server.DataDir, logger.With("api")),
		gatherer: gatherer,
	}
	s.router.Use(gin.Recovery())
	if gin.Mode() != gin.TestMode {
		s.router.Use(gin.Logger())
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures the application routes
func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	runs := s.router.Group("/api/runs")
	runs.POST("", s.runs.CreateRun)
	runs.GET("", s.runs.ListRuns)
	runs.GET("/:id", s.runs.GetRun)
	runs.GET("/:id/report", s.runs.GetRunReport)
}

// Handler exposes the router, mainly for httptest
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
