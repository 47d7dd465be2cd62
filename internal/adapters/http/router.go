package http

import (
	"context"
	"strconv"
	"time"

	"github.com/dkeye/lanhub/internal/adapters/signal"
	"github.com/dkeye/lanhub/internal/app/orch"
	"github.com/dkeye/lanhub/internal/config"
	"github.com/dkeye/lanhub/internal/metrics"
	handlers "github.com/dkeye/lanhub/internal/transport/http"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// MetricsMiddleware records request count and latency per route.
func MetricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		m.RecordHTTPRequest(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status()), time.Since(start).Seconds())
	}
}

// SetupRouter wires the admin API, the Prometheus endpoint and the
// WebSocket control gateway. gatherer may be nil for the default registry.
func SetupRouter(
	ctx context.Context,
	cfg *config.Config,
	o *orch.Orchestrator,
	ctl *signal.SignalController,
	m *metrics.Metrics,
	gatherer prometheus.Gatherer,
) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	log.Info().Str("module", "adapters.http").Msg("router setup")

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	h := &handlers.Handlers{Orch: o, StartedAt: time.Now()}
	api := r.Group("/api", MetricsMiddleware(m))
	api.GET("/health", h.Health)
	api.GET("/sessions", h.ListSessions)
	api.DELETE("/sessions/:id", h.KickSession)
	api.GET("/files", h.ListFiles)
	api.GET("/files/:id", h.DownloadFile)
	api.GET("/presenter", h.Presenter)

	r.GET("/ws/signal", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("remote", c.ClientIP()).Msg("ws signal endpoint hit")
		ctl.HandleWS(ctx, c)
	})

	return r
}
