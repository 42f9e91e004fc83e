package console

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"devpulse/internal/bus"
	"devpulse/internal/config"
	"devpulse/internal/logger"
	"devpulse/internal/queue"
	"devpulse/pkg/errors"
	"devpulse/pkg/health"
	"devpulse/pkg/ratelimit"
)

// Handler serves the operator console: observational snapshots of the bus
// and queues, health checks, and the metrics endpoint. Everything here is
// read-only.
type Handler struct {
	Bus     *bus.Bus
	Manager *queue.Manager
	Health  *health.CheckerRegistry
	Logger  logger.Logger
}

func NewHandler(b *bus.Bus, m *queue.Manager, h *health.CheckerRegistry, log logger.Logger) *Handler {
	return &Handler{
		Bus:     b,
		Manager: m,
		Health:  h,
		Logger:  log,
	}
}

// NewRouter builds the console gin engine with rate limiting applied to the
// API group. /health and /metrics stay unlimited so probes and scrapers are
// never throttled.
func NewRouter(h *Handler, cfg config.RateLimitConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	v1 := router.Group("/api/v1")
	if cfg.Enabled {
		rl := ratelimit.DefaultConfig()
		if cfg.RPS > 0 {
			rl.RPS = cfg.RPS
		}
		if cfg.Burst > 0 {
			rl.Burst = cfg.Burst
		}
		v1.Use(ratelimit.Middleware(rl))
	}
	{
		v1.GET("/stats", h.GetStats)
		v1.GET("/queues", h.ListQueues)
		v1.GET("/queues/:name", h.GetQueue)
		v1.GET("/subscribers", h.GetSubscribers)
	}

	router.GET("/health", h.GetHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return router
}

// GetStats godoc
// @Summary      Event bus statistics
// @Description  Get aggregate publish counters, per-category and per-severity breakdowns, and throughput
// @Tags         console
// @Produce      json
// @Success      200  {object}  bus.Statistics
// @Router       /stats [get]
func (h *Handler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.Bus.Statistics())
}

// ListQueues godoc
// @Summary      List all queues
// @Description  Get per-queue snapshots keyed by queue name
// @Tags         console
// @Produce      json
// @Success      200  {object}  map[string]queue.Stats
// @Router       /queues [get]
func (h *Handler) ListQueues(c *gin.Context) {
	c.JSON(http.StatusOK, h.Manager.AllStats())
}

// GetQueue godoc
// @Summary      Get a queue by name
// @Description  Get the snapshot for one named queue
// @Tags         console
// @Produce      json
// @Param        name  path      string  true  "Queue name"
// @Success      200   {object}  queue.Stats
// @Failure      404   {object}  errors.ErrorResponse
// @Router       /queues/{name} [get]
func (h *Handler) GetQueue(c *gin.Context) {
	name := c.Param("name")
	stats, ok := h.Manager.Stats(name)
	if !ok {
		err := errors.ErrNotFound.WithDetail("queue", name)
		c.JSON(errors.ToHTTPStatus(err), errors.ToErrorResponse(err))
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetSubscribers godoc
// @Summary      Subscriber summary
// @Description  Get the active subscriber count and total pending queue depth
// @Tags         console
// @Produce      json
// @Success      200  {object}  map[string]int
// @Router       /subscribers [get]
func (h *Handler) GetSubscribers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"subscribers": h.Bus.SubscriberCount(),
		"queue_depth": h.Bus.QueueSize(),
	})
}

func (h *Handler) GetHealth(c *gin.Context) {
	result := h.Health.Check(c.Request.Context())
	status := http.StatusOK
	if result.Status != health.StatusHealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, result)
}
