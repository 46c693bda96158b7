package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"serpmonitor/db"
	"serpmonitor/models"
)

var alertStatuses = map[string]bool{
	models.AlertPending:   true,
	models.AlertRead:      true,
	models.AlertDismissed: true,
}

func (h *Handler) ListAlerts(c *gin.Context) {
	status := c.Query("status")
	if status != "" && !alertStatuses[status] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status. Must be pending, read or dismissed"})
		return
	}
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

	ctx := c.Request.Context()
	alerts, err := h.store.ListAlerts(ctx, status, limit, offset)
	if err != nil {
		h.logger.Error("listing alerts", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	unread, err := h.store.UnreadAlertCount(ctx)
	if err != nil {
		h.logger.Warn("counting unread alerts", "error", err)
	}

	c.JSON(http.StatusOK, gin.H{
		"alerts":      alerts,
		"unreadCount": unread,
		"limit":       limit,
		"offset":      offset,
	})
}

func (h *Handler) MarkAlertRead(c *gin.Context) {
	h.setAlertStatus(c, h.store.MarkAlertRead)
}

func (h *Handler) DismissAlert(c *gin.Context) {
	h.setAlertStatus(c, h.store.MarkAlertDismissed)
}

func (h *Handler) setAlertStatus(c *gin.Context, update func(ctx context.Context, id string) error) {
	id := c.Param("id")
	err := update(c.Request.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Alert not found"})
		return
	}
	if err != nil {
		h.logger.Error("updating alert", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Database error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) MarkAllAlertsRead(c *gin.Context) {
	n, err := h.store.MarkAllAlertsRead(c.Request.Context())
	if err != nil {
		h.logger.Error("marking all alerts read", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Database error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "updated": n})
}
