// Package server exposes the rewrite pipeline over HTTP: a JSON
// endpoint, an SSE streaming endpoint, and operational probes.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tonebridge/internal/config"
	"tonebridge/internal/pipeline"
)

// Server owns the gin engine and its route handlers.
type Server struct {
	cfg    *config.Config
	pipe   *pipeline.Pipeline
	engine *gin.Engine
}

// New builds the engine with recovery, request-ID and logging
// middleware and registers all routes.
func New(cfg *config.Config, pipe *pipeline.Pipeline) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), RequestID(), RequestLogger())

	s := &Server{cfg: cfg, pipe: pipe, engine: engine}

	engine.GET("/healthz", s.healthz)
	v1 := engine.Group("/v1")
	{
		v1.POST("/rewrite", s.rewrite)
		v1.POST("/rewrite/stream", s.rewriteStream)
		v1.GET("/rewrite/tier", s.tierInfo)
		v1.GET("/usage", s.usage)
	}
	return s
}

// Handler returns the engine for an http.Server.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"name":    s.cfg.Name,
		"version": s.cfg.Version,
	})
}

func (s *Server) usage(c *gin.Context) {
	c.JSON(http.StatusOK, s.pipe.Tracker().Snapshot())
}

func (s *Server) tierInfo(c *gin.Context) {
	tier := tierOf(c.Query("tier"))
	c.JSON(http.StatusOK, gin.H{
		"tier":          string(tier),
		"maxTextLength": s.cfg.MaxTextLength(string(tier)),
		"promptEnabled": true,
	})
}
