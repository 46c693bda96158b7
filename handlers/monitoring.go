package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"serpmonitor/config"
	"serpmonitor/db"
	"serpmonitor/models"
	"serpmonitor/services"
)

// GetStatus returns the latest verdict of every configured engine.
func (h *Handler) GetStatus(c *gin.Context) {
	ctx := c.Request.Context()

	targets, err := h.targets.ListTargets(ctx)
	if err != nil {
		h.logger.Error("listing targets", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	engines := make([]models.EngineStatus, 0, len(targets))
	for _, t := range targets {
		st := models.EngineStatus{
			Engine:              t.Engine,
			Label:               t.Label,
			Enabled:             t.Enabled,
			Status:              "unknown",
			MissingSectionNames: []string{},
		}

		run, err := h.store.LatestRun(ctx, t.Engine)
		if err != nil && !errors.Is(err, db.ErrNotFound) {
			h.logger.Error("loading latest run", "engine", t.Engine, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
			return
		}

		var summary *models.DiagnosticSummary
		if run != nil {
			st.Status = string(run.Status)
			created := run.CreatedAt
			st.LastRunAt = &created

			entry := run.HistoryEntry()
			st.MissingSections = entry.MissingSections
			st.CriticalMissing = entry.CriticalMissing
			st.IsBlocked = entry.IsBlocked

			summary, _ = run.Summary()
			if names := summary.MissingSectionNames(0, false); names != nil {
				st.MissingSectionNames = names
			}
		}
		st.StatusReason = services.StatusReason(st.Status, summary)
		engines = append(engines, st)
	}

	unread, err := h.store.UnreadAlertCount(ctx)
	if err != nil {
		h.logger.Warn("counting unread alerts", "error", err)
	}

	c.JSON(http.StatusOK, gin.H{
		"enabled":       h.MonitoringEnabled,
		"intervalHours": h.IntervalHours,
		"engines":       engines,
		"unreadAlerts":  unread,
	})
}

func historyEntries(runs []models.DiagnosticRun) []models.HistoryEntry {
	entries := make([]models.HistoryEntry, 0, len(runs))
	for _, r := range runs {
		entries = append(entries, r.HistoryEntry())
	}
	return entries
}

func (h *Handler) GetHistory(c *gin.Context) {
	limit, ok := intQuery(c, "limit", 50, 1, 100)
	if !ok {
		badQuery(c, "limit", 1, 100)
		return
	}
	offset, ok := intQuery(c, "offset", 0, 0, 0)
	if !ok {
		badQuery(c, "offset", 0, 0)
		return
	}
	engine := c.Query("engine")

	runs, err := h.store.ListRuns(c.Request.Context(), engine, limit, offset)
	if err != nil {
		h.logger.Error("listing runs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"history": historyEntries(runs),
		"limit":   limit,
		"offset":  offset,
	})
}

// GetHistoryChart returns up to days*24 of the engine's most recent runs,
// one per hourly pass.
func (h *Handler) GetHistoryChart(c *gin.Context) {
	engine := c.Param("engine")
	days, ok := intQuery(c, "days", 7, 1, 30)
	if !ok {
		badQuery(c, "days", 1, 30)
		return
	}

	runs, err := h.store.ListRuns(c.Request.Context(), engine, days*24, 0)
	if err != nil {
		h.logger.Error("listing chart runs", "engine", engine, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"engine": engine,
		"days":   days,
		"data":   historyEntries(runs),
	})
}

func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.store.EngineStats(c.Request.Context())
	if err != nil {
		h.logger.Error("engine stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if stats == nil {
		stats = []models.EngineStats{}
	}
	c.JSON(http.StatusOK, gin.H{"engines": stats})
}

// TriggerScan runs an on-demand scan of one engine, or of every enabled
// engine when the body names none.
func (h *Handler) TriggerScan(c *gin.Context) {
	var req struct {
		Engine string `json:"engine"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid JSON"})
			return
		}
	}

	results, err := h.scanner.ScanNow(c.Request.Context(), req.Engine)
	switch {
	case errors.Is(err, services.ErrEngineNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": err.Error()})
		return
	case err != nil:
		h.logger.Error("manual scan failed", "engine", req.Engine, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "results": results})
}

// GetConfig lists stored target configuration, or the resolved defaults
// when nothing has been stored yet.
func (h *Handler) GetConfig(c *gin.Context) {
	ctx := c.Request.Context()
	configs, err := h.store.ListTargetConfigs(ctx)
	if err != nil {
		h.logger.Error("listing target configs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if len(configs) == 0 {
		if configs, err = h.targets.ListTargets(ctx); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"configs": configs})
}

func (h *Handler) SaveConfig(c *gin.Context) {
	var req struct {
		Engine        string                 `json:"engine"`
		Label         string                 `json:"label"`
		Params        map[string]interface{} `json:"params"`
		IntervalHours *int                   `json:"intervalHours"`
		Enabled       *bool                  `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}
	if req.Engine == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "engine is required"})
		return
	}
	if req.Params == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "params is required"})
		return
	}

	interval := 1
	if req.IntervalHours != nil {
		interval = *req.IntervalHours
	}
	if interval < 1 || interval > 24 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "intervalHours must be between 1 and 24"})
		return
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	ctx := c.Request.Context()
	existing, err := h.store.ListTargetConfigs(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	updated := false
	label := req.Label
	for _, t := range existing {
		if t.Engine == req.Engine {
			updated = true
			if label == "" {
				label = t.Label
			}
		}
	}
	if label == "" {
		label = defaultLabel(req.Engine)
	}

	target := models.TargetConfig{
		Engine:        req.Engine,
		Label:         label,
		Params:        req.Params,
		IntervalHours: interval,
		Enabled:       enabled,
	}
	if err := h.store.UpsertTargetConfig(ctx, &target); err != nil {
		h.logger.Error("saving target config", "engine", req.Engine, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save config"})
		return
	}

	resp := gin.H{"success": true, "id": target.ID}
	if updated {
		resp["updated"] = true
	} else {
		resp["created"] = true
	}
	c.JSON(http.StatusOK, resp)
}

func defaultLabel(engine string) string {
	for _, t := range config.DefaultTargets() {
		if t.Engine == engine {
			return t.Label
		}
	}
	return services.EngineTitle(engine)
}
