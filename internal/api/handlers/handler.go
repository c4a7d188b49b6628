package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/solarsim/internal/repository"
)

// ListReadings 获取单元的发电记录
// GET /api/energy-generation-records/solar-unit/:serialNumber?sinceTimestamp=
// 按时间升序，指定 sinceTimestamp 时只返回其之后的记录
func (h *Handler) ListReadings(c *gin.Context) {
	serialNumber := c.Param("serialNumber")

	var since *time.Time
	if raw := c.Query("sinceTimestamp"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid sinceTimestamp, expected RFC3339"})
			return
		}
		ts = ts.UTC()
		since = &ts
	}

	readings, err := h.readings.ListBySerialNumber(c.Request.Context(), serialNumber, since)
	if err != nil {
		h.logger.Error("Failed to list energy records", zap.String("serial_number", serialNumber), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list energy records"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": readings})
}

// GetAnomalyCounts 按异常类型统计
func (h *Handler) GetAnomalyCounts(c *gin.Context) {
	serialNumber := c.Param("serialNumber")

	counts, err := h.readings.CountAnomalies(c.Request.Context(), serialNumber)
	if err != nil {
		h.logger.Error("Failed to count anomalies", zap.String("serial_number", serialNumber), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count anomalies"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"serial_number": serialNumber,
			"counts":        counts,
			"total":         counts.Total(),
		},
	})
}

// ListUnits 获取发电单元列表
func (h *Handler) ListUnits(c *gin.Context) {
	units, err := h.units.List(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list solar units", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list solar units"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": units})
}

// GetUnit 获取发电单元详情
func (h *Handler) GetUnit(c *gin.Context) {
	unit, err := h.units.GetBySerialNumber(c.Request.Context(), c.Param("serialNumber"))
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Solar unit not found"})
		return
	}
	if err != nil {
		h.logger.Error("Failed to get solar unit", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get solar unit"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": unit})
}
