package server

import (
	"net/http"
	"time"

	"github.com/danmuck/defectctl/internal/auth"
	"github.com/danmuck/defectctl/internal/segment"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes(v auth.Validator) {
	s.engine.GET("/health", func(c *gin.Context) {
		body := gin.H{
			"status":   "ok",
			"service":  serviceName,
			"version":  Version,
			"uptime":   time.Since(s.started).Round(time.Second).String(),
			"sessions": s.ActiveSessions(),
		}
		if cache, ok := s.seg.(*segment.Cache); ok {
			body["cached_features"] = cache.Len()
		}
		c.JSON(http.StatusOK, body)
	})
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.engine.GET(s.cfg.Path, auth.Middleware(v), s.handleWebsocket)
}
