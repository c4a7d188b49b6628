package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/langchou/solarsim/internal/models"
	"github.com/langchou/solarsim/internal/service"
	"github.com/langchou/solarsim/internal/state"
	"github.com/langchou/solarsim/pkg/ws"
)

// ReadingStore 发电记录查询
type ReadingStore interface {
	ListBySerialNumber(ctx context.Context, serialNumber string, since *time.Time) ([]*models.Reading, error)
	CountAnomalies(ctx context.Context, serialNumber string) (models.AnomalyCounts, error)
}

// UnitStore 发电单元查询
type UnitStore interface {
	List(ctx context.Context) ([]*models.SolarUnit, error)
	GetBySerialNumber(ctx context.Context, serialNumber string) (*models.SolarUnit, error)
}

// BackfillRunner 异步回填
type BackfillRunner interface {
	Launch(req service.BackfillRequest) (string, error)
	Status(runID string) (*state.RunState, bool)
	Runs() []*state.RunState
}

// Handler HTTP 处理器
type Handler struct {
	logger   *zap.Logger
	readings ReadingStore
	units    UnitStore
	backfill BackfillRunner
	wsHub    *ws.Hub
	upgrader websocket.Upgrader
}

// NewHandler 创建处理器
func NewHandler(
	logger *zap.Logger,
	readings ReadingStore,
	units UnitStore,
	backfill BackfillRunner,
	wsHub *ws.Hub,
) *Handler {
	return &Handler{
		logger:   logger,
		readings: readings,
		units:    units,
		backfill: backfill,
		wsHub:    wsHub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 开发环境允许所有来源
			},
		},
	}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api")
	{
		// 发电记录
		records := api.Group("/energy-generation-records")
		records.GET("/solar-unit/:serialNumber", h.ListReadings)
		records.GET("/solar-unit/:serialNumber/anomalies", h.GetAnomalyCounts)

		// 发电单元
		api.GET("/solar-units", h.ListUnits)
		api.GET("/solar-units/:serialNumber", h.GetUnit)

		// 回填
		api.POST("/backfill", h.StartBackfill)
		api.GET("/backfill", h.ListBackfills)
		api.GET("/backfill/:id", h.GetBackfill)
	}

	// WebSocket
	r.GET("/ws", h.HandleWebSocket)

	// 健康检查
	r.GET("/health", h.HealthCheck)
}

// HandleWebSocket WebSocket 处理
// 可选 ?serial_number= 只接收该单元的记录
func (h *Handler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}

	client := ws.NewClient(h.wsHub, conn, c.Query("serial_number"))
	client.Register()

	// 启动读写协程
	go client.ReadPump()
	go client.WritePump()
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"ws_clients": h.wsHub.ClientCount(),
	})
}
