package controllers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"signal_report_backend/middleware"
	"signal_report_backend/models"
	"signal_report_backend/services/settings"
)

// SettingsManager reads and switches notifier settings
type SettingsManager interface {
	GetAll(ctx context.Context) ([]models.NotifierSetting, error)
	Update(ctx context.Context, name string, enabled bool, updatedBy string) (bool, error)
}

// NotifierController lets operators enable and disable channels
type NotifierController struct {
	settings SettingsManager
}

// NewNotifierController creates a notifier controller
func NewNotifierController(settings SettingsManager) *NotifierController {
	return &NotifierController{settings: settings}
}

// UpdateNotifierRequest switches one channel
type UpdateNotifierRequest struct {
	NotifierName string `json:"notifier_name" binding:"required"`
	IsEnabled    *bool  `json:"is_enabled" binding:"required"`
}

// List returns every channel setting, read fresh from the store
// GET /api/v1/notifiers
func (ctrl *NotifierController) List(c *gin.Context) {
	rows, err := ctrl.settings.GetAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"notifiers": rows,
		"count":     len(rows),
	})
}

// Update enables or disables a channel on behalf of the calling operator
// POST /api/v1/notifiers
func (ctrl *NotifierController) Update(c *gin.Context) {
	var req UpdateNotifierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "notifier_name and is_enabled are required"})
		return
	}

	updatedBy := middleware.OperatorFromContext(c)
	ok, err := ctrl.settings.Update(c.Request.Context(), req.NotifierName, *req.IsEnabled, updatedBy)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("%v: %s", settings.ErrUnknownChannel, req.NotifierName),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"notifier_name": req.NotifierName,
		"is_enabled":    *req.IsEnabled,
		"updated_by":    updatedBy,
	})
}
