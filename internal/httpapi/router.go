package httpapi

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/zheng/gpuswitch/internal/engine"
	"github.com/zheng/gpuswitch/internal/metrics"
)

// Router builds the gin.Engine for the whole HTTP surface. adminToken
// and rateLimitPerMinute come straight from envconfig; passing
// rateLimitPerMinute=0 disables the rate-limit middleware entirely.
// Generalized from the teacher's cmd/switcher/main.go, which built its
// router inline in func main() with a CORS closure; here the same
// closure-middleware idiom chains auth, request-id, and rate-limit.
func Router(e *engine.Engine, m *metrics.Metrics, adminToken string, rateLimitPerMinute int, log zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestIDMiddleware(log))
	r.Use(authMiddleware(adminToken))

	h := New(e, m)

	r.GET("/health", h.Health)
	r.GET("/healthz/ready", h.Ready)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/models", h.Models)
	r.GET("/status", h.Status)
	r.GET("/mode", h.Mode)

	switchGroup := r.Group("/")
	switchGroup.Use(rateLimitMiddleware(rateLimitPerMinute))
	switchGroup.POST("/mode/switch", h.SwitchMode)
	switchGroup.POST("/switch", h.Switch)

	r.POST("/mode/release", h.Release)
	r.POST("/stop", h.Stop)

	return r
}
