package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"serpmonitor/db"
	"serpmonitor/services"
)

// Pinger reports whether the database is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Handler serves the monitoring and diagnostics API.
type Handler struct {
	store   *db.Store
	db      Pinger
	scanner *services.Orchestrator
	targets services.TargetProvider
	logger  *slog.Logger
	started time.Time

	// MonitoringEnabled and IntervalHours are echoed by the status view.
	MonitoringEnabled bool
	IntervalHours     int
}

func New(store *db.Store, conn Pinger, scanner *services.Orchestrator, targets services.TargetProvider, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:             store,
		db:                conn,
		scanner:           scanner,
		targets:           targets,
		logger:            logger,
		started:           time.Now(),
		MonitoringEnabled: true,
		IntervalHours:     1,
	}
}

// Register mounts every route on r. limiter, when non-nil, guards the /api
// group.
func (h *Handler) Register(r *gin.Engine, limiter gin.HandlerFunc) {
	api := r.Group("/api")
	if limiter != nil {
		api.Use(limiter)
	}

	api.GET("/health", h.Health)

	monitoring := api.Group("/monitoring")
	{
		monitoring.GET("/status", h.GetStatus)
		monitoring.GET("/history", h.GetHistory)
		monitoring.GET("/history/:engine/chart", h.GetHistoryChart)
		monitoring.GET("/stats", h.GetStats)

		monitoring.GET("/alerts", h.ListAlerts)
		monitoring.POST("/alerts/read-all", h.MarkAllAlertsRead)
		monitoring.POST("/alerts/:id/read", h.MarkAlertRead)
		monitoring.POST("/alerts/:id/dismiss", h.DismissAlert)

		monitoring.POST("/trigger", h.TriggerScan)
		monitoring.GET("/config", h.GetConfig)
		monitoring.POST("/config", h.SaveConfig)
	}

	diagnostics := api.Group("/diagnostics")
	{
		diagnostics.POST("/upstream/analyze", h.AnalyzeUpstream)
		diagnostics.POST("/deep-analysis", h.DeepAnalysis)
		diagnostics.POST("/full", h.FullDiagnostic)
		diagnostics.POST("/ticket/generate", h.GenerateTicket)
	}
}

// intQuery parses an optional integer query parameter and checks it
// against [min, max]. max <= 0 means no upper bound.
func intQuery(c *gin.Context, key string, def, min, max int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < min || (max > 0 && n > max) {
		return 0, false
	}
	return n, true
}

func badQuery(c *gin.Context, key string, min, max int) {
	msg := key + " must be an integer >= " + strconv.Itoa(min)
	if max > 0 {
		msg = key + " must be an integer between " + strconv.Itoa(min) + " and " + strconv.Itoa(max)
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

// Health reports process uptime and database reachability.
func (h *Handler) Health(c *gin.Context) {
	start := time.Now()

	dbStatus := "ok"
	var dbLatency int64
	if h.db == nil {
		dbStatus = "error"
	} else {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		dbStart := time.Now()
		if err := h.db.PingContext(ctx); err != nil {
			h.logger.Warn("health check database ping failed", "error", err)
			dbStatus = "error"
		}
		dbLatency = time.Since(dbStart).Milliseconds()
	}

	status, code := "healthy", http.StatusOK
	if dbStatus != "ok" {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"uptime":    int64(time.Since(h.started).Seconds()),
		"latency": gin.H{
			"total":    time.Since(start).Milliseconds(),
			"database": dbLatency,
		},
		"checks": gin.H{"database": dbStatus},
	})
}
