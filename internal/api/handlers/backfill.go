package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/solarsim/internal/generator"
	"github.com/langchou/solarsim/internal/repository"
	"github.com/langchou/solarsim/internal/service"
)

// StartBackfill 启动异步回填
// POST /api/backfill
// 未指定容量或间隔时使用已注册单元的配置
func (h *Handler) StartBackfill(c *gin.Context) {
	var req service.BackfillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	if req.SerialNumber != "" && (req.RatedCapacityW == 0 || req.IntervalHours == 0) {
		unit, err := h.units.GetBySerialNumber(c.Request.Context(), req.SerialNumber)
		switch {
		case err == nil:
			if req.RatedCapacityW == 0 {
				req.RatedCapacityW = unit.RatedCapacityW
			}
			if req.IntervalHours == 0 {
				req.IntervalHours = unit.IntervalHours
			}
		case !errors.Is(err, repository.ErrNotFound):
			h.logger.Error("Failed to get solar unit", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get solar unit"})
			return
		}
	}
	if req.IntervalHours == 0 {
		req.IntervalHours = generator.DefaultIntervalHours
	}

	runID, err := h.backfill.Launch(req)
	switch {
	case errors.Is(err, generator.ErrInvalidConfiguration):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, service.ErrBackfillInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		h.logger.Error("Failed to start backfill", zap.String("serial_number", req.SerialNumber), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start backfill"})
		return
	}

	h.logger.Info("Backfill started via API",
		zap.String("run_id", runID),
		zap.String("serial_number", req.SerialNumber))
	c.JSON(http.StatusAccepted, gin.H{
		"message": "Backfill started",
		"run_id":  runID,
	})
}

// GetBackfill 获取回填任务状态
func (h *Handler) GetBackfill(c *gin.Context) {
	st, ok := h.backfill.Status(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Backfill run not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": st})
}

// ListBackfills 获取所有回填任务
func (h *Handler) ListBackfills(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.backfill.Runs()})
}
