// Package httpapi is the public HTTP surface of the server: the gin
// router, the handlers and the error translation to the {reason}
// envelope.
package httpapi

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/cipherdrop/cipherdrop/internal/logging"
	"github.com/cipherdrop/cipherdrop/internal/server/config"
	"github.com/cipherdrop/cipherdrop/internal/server/metrics"
	"github.com/cipherdrop/cipherdrop/internal/server/services"
)

// NewRouter wires routes, middlewares and handlers.
func NewRouter(svc *services.FileService, cfg *config.Config, m *metrics.ServerMetrics, logger logging.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestMetrics(m))

	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Authorization", "Content-Type"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if cfg.CorsOrigin == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = strings.Split(cfg.CorsOrigin, ",")
	}
	r.Use(cors.New(corsCfg))

	h := NewHandler(svc, cfg, logger)

	r.GET("/status", h.Status)

	v1 := r.Group("/v1")
	v1.POST("/files", h.Upload)
	v1.GET("/files/:access_token", h.Fetch)
	v1.DELETE("/files/:access_token", h.Delete)
	v1.POST("/files/:access_token/expiry", h.ExtendExpiry)
	v1.GET("/files/:access_token/challenge", h.GetChallenge)
	v1.POST("/files/:access_token/challenge", h.VerifyChallenge)

	return r
}

func requestMetrics(m *metrics.ServerMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method
		status := strconv.Itoa(c.Writer.Status())

		m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		m.HTTPRequestsDuration.WithLabelValues(method, path, status).
			Observe(time.Since(start).Seconds())
	}
}
