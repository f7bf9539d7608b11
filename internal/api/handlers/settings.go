package handlers

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rebinmas/printserver/internal/core"
	"github.com/rebinmas/printserver/internal/db"
	"github.com/rebinmas/printserver/internal/printer"
)

const defaultPrinterKey = "default_printer_id"

type SettingsHandler struct {
	settings *db.SettingsOperations
	printers *printer.Manager
	limits   core.Limits
}

func NewSettingsHandler(settings *db.SettingsOperations, printers *printer.Manager, limits core.Limits) *SettingsHandler {
	return &SettingsHandler{settings: settings, printers: printers, limits: limits}
}

// GetLimits reports the bounds enforced on submitted print settings so
// clients can validate before submitting.
func (h *SettingsHandler) GetLimits(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"max_copies":     h.limits.MaxCopies,
		"scale_min":      h.limits.ScaleMin,
		"scale_max":      h.limits.ScaleMax,
		"brightness_min": h.limits.BrightnessMin,
		"brightness_max": h.limits.BrightnessMax,
		"contrast_min":   h.limits.ContrastMin,
		"contrast_max":   h.limits.ContrastMax,
	})
}

func (h *SettingsHandler) GetDefaultPrinter(c *gin.Context) {
	setting, err := h.settings.GetSetting(c.Request.Context(), defaultPrinterKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusOK, gin.H{"printer_id": nil})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load setting"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"printer_id": setting.Value})
}

func (h *SettingsHandler) SetDefaultPrinter(c *gin.Context) {
	var req struct {
		PrinterID string `json:"printer_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !h.printers.Exists(req.PrinterID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "printer not found"})
		return
	}

	if err := h.settings.SetSetting(c.Request.Context(), defaultPrinterKey, req.PrinterID, false); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save setting"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"printer_id": req.PrinterID})
}

func (h *SettingsHandler) ClearDefaultPrinter(c *gin.Context) {
	if err := h.settings.DeleteSetting(c.Request.Context(), defaultPrinterKey); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear setting"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "default printer cleared"})
}
