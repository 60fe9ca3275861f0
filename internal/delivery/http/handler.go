package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/paincake00/geopromo/internal/clock"
	"github.com/paincake00/geopromo/internal/delivery/http/middleware"
	"github.com/paincake00/geopromo/internal/metrics"
	"github.com/paincake00/geopromo/internal/usecase"
)

const defaultStatsWindow = 30 * time.Minute

// Pinger интерфейс для проверки соединения с сервисами (БД, Redis).
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services прикладные сервисы, которые обслуживает HTTP-слой.
type Services struct {
	Dispatcher *usecase.Dispatcher
	Events     *usecase.EventRecorder
	Rules      *usecase.RuleEngine
	Stats      *usecase.StatsService
	Zones      *usecase.ZoneIndex
}

// Handler структура, объединяющая все HTTP-обработчики.
type Handler struct {
	Services
	DBPinger    Pinger
	RedisPinger Pinger
	APIKey      string
	StatsWindow time.Duration
	Clock       clock.Clock
	Metrics     *metrics.Collector
	Log         *zap.Logger
}

// NewHandler создает новый экземпляр HTTP-обработчика.
func NewHandler(svc Services, db Pinger, rds Pinger, apiKey string, statsWindow time.Duration, m *metrics.Collector, log *zap.Logger) *Handler {
	if statsWindow <= 0 {
		statsWindow = defaultStatsWindow
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		Services:    svc,
		DBPinger:    db,
		RedisPinger: rds,
		APIKey:      apiKey,
		StatsWindow: statsWindow,
		Clock:       clock.NewSystem(),
		Metrics:     m,
		Log:         log,
	}
}

// InitRoutes инициализирует роутер Gin и настраивает маршруты API.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(h.Log))

	router.GET("/api/v1/system/health", h.healthCheck)
	if h.Metrics != nil {
		router.GET("/metrics", gin.WrapH(h.Metrics.Handler()))
	}

	v1 := router.Group("/api/v1")
	{
		location := v1.Group("/location")
		{
			location.POST("/update", h.updateLocation)
		}

		// Служебные маршруты только по API-ключу
		private := v1.Group("")
		private.Use(middleware.AuthMiddleware(h.APIKey))
		{
			events := private.Group("/events")
			events.GET("/recent", h.recentEvents)
			events.GET("/zones/:id", h.zoneEvents)
			events.GET("/zones/:id/window", h.zoneEventsWindow)
			events.GET("/devices/:id", h.deviceEvents)

			stats := private.Group("/stats")
			stats.GET("/events", h.eventStats)
			stats.GET("/companies/:id", h.companyStats)

			private.GET("/zones/:id/rules", h.zoneRules)
			private.POST("/companies/:id/zones/invalidate", h.invalidateZones)
		}
	}

	return router
}

// healthCheck проверяет состояние сервиса и зависимостей (PostgreSQL, Redis).
func (h *Handler) healthCheck(c *gin.Context) {
	ctx := c.Request.Context()
	if h.DBPinger != nil {
		if err := h.DBPinger.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "db": err.Error()})
			return
		}
	}
	if h.RedisPinger != nil {
		if err := h.RedisPinger.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "redis": err.Error()})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
