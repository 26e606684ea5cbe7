package server

import (
	"io"

	"github.com/gin-gonic/gin"
)

func (s *Server) setupRoutes() {
	gin.SetMode(s.ginMode)
	s.router = gin.New()

	s.router.Use(gin.LoggerWithWriter(s.accessLogWriter()))
	s.router.Use(gin.Recovery())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.metricsMiddleware())
	s.router.Use(s.corsMiddleware())
	s.router.Use(s.maxBodySizeMiddleware())
	s.router.Use(s.rateLimitMiddleware())

	s.router.GET("/health", s.healthCheck)
	s.router.GET("/api/stats", s.getStatsData)
	s.router.GET("/metrics", gin.WrapH(s.metricsService.Handler()))

	ollama := s.router.Group("/ai/ollama")
	{
		ollama.POST("/generate", s.ollamaGenerate)
		ollama.GET("/tags", s.ollamaTags)
		ollama.GET("/models", s.ollamaModels)
		ollama.GET("/availability", s.ollamaAvailability)
	}
}

func (s *Server) accessLogWriter() io.Writer {
	if w, ok := s.logger.(interface{ Writer() io.Writer }); ok {
		return w.Writer()
	}
	return gin.DefaultWriter
}
