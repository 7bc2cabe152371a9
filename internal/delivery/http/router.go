package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Limits bound what a single request may carry.
type Limits struct {
	MaxBodyBytes    int64
	MaxFilesPerScan int
}

// DefaultLimits returns the server defaults: 8 MiB bodies, 16 files.
func DefaultLimits() Limits {
	return Limits{MaxBodyBytes: 8 << 20, MaxFilesPerScan: 16}
}

// RouteConfig holds all handlers and router configuration.
type RouteConfig struct {
	Router         *gin.Engine
	ScanHandler    *ScanHandler
	CacheHandler   *CacheHandler
	AllowedOrigins []string
	Limits         Limits
}

func (c *RouteConfig) Setup() {
	c.Router.Use(gin.Recovery())
	c.Router.Use(corsMiddleware(c.AllowedOrigins))
	c.Router.Use(bodyLimitMiddleware(c.Limits.MaxBodyBytes))

	c.Router.GET("/health", healthCheck)

	c.Router.POST("/scan", c.ScanHandler.StartScan)
	c.Router.GET("/status/:job_id", c.ScanHandler.GetStatus)
	c.Router.GET("/report/:job_id", c.ScanHandler.GetReport)
	c.Router.GET("/report/:job_id/archive", c.ScanHandler.GetArchiveLocation)
	c.Router.DELETE("/scan/:job_id", c.ScanHandler.CancelScan)
	c.Router.GET("/jobs", c.ScanHandler.ListJobs)

	c.Router.GET("/cache/stats", c.CacheHandler.GetStats)
	c.Router.POST("/cache/cleanup", c.CacheHandler.Cleanup)
}

// corsMiddleware allows cross-origin requests from the configured origins.
// An empty list allows any origin, matching a deployment that restricts
// exposure at the network layer instead.
func corsMiddleware(origins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		allowed := "*"
		if len(origins) > 0 {
			allowed = ""
			for _, o := range origins {
				if strings.EqualFold(o, origin) {
					allowed = origin
					break
				}
			}
		}
		if allowed != "" {
			c.Header("Access-Control-Allow-Origin", allowed)
			c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// bodyLimitMiddleware caps request body size.
func bodyLimitMiddleware(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

// healthCheck provides a simple liveness endpoint.
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "depscan",
	})
}
