package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/solarsim/internal/api/handlers"
	"github.com/langchou/solarsim/internal/config"
	"github.com/langchou/solarsim/internal/generator"
	"github.com/langchou/solarsim/internal/logger"
	"github.com/langchou/solarsim/internal/models"
	"github.com/langchou/solarsim/internal/queue"
	"github.com/langchou/solarsim/internal/repository"
	"github.com/langchou/solarsim/internal/service"
	"github.com/langchou/solarsim/pkg/ws"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logger, err := logger.New(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting solarsim", zap.String("port", cfg.ServerPort))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 连接数据库
	db, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect database", zap.Error(err))
	}
	defer db.Close()

	// 执行数据库迁移
	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}
	logger.Info("Database migrated successfully")

	// 创建 Repository
	unitRepo := repository.NewUnitRepository(db)
	readingRepo := repository.NewReadingRepository(db)

	// 注册配置的发电单元
	for _, u := range cfg.Units {
		unit := &models.SolarUnit{
			SerialNumber:   u.SerialNumber,
			RatedCapacityW: u.RatedCapacityW,
			IntervalHours:  cfg.IntervalHours,
		}
		if err := unitRepo.Upsert(ctx, unit); err != nil {
			logger.Fatal("Failed to register solar unit", zap.String("serial_number", u.SerialNumber), zap.Error(err))
		}
		logger.Info("Solar unit registered",
			zap.String("serial_number", unit.SerialNumber),
			zap.Float64("rated_capacity_w", unit.RatedCapacityW))
	}

	// 存储端：数据库 + 可选 Kafka 镜像
	var sink service.Sink = readingRepo
	if len(cfg.KafkaBrokers) > 0 {
		producer := queue.NewReadingProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		sink = service.NewTeeSink(readingRepo, producer, logger)
		logger.Info("Mirroring energy records to Kafka",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic", cfg.KafkaTopic))
	}

	gen := generator.NewFromSeed(cfg.RandomSeed)

	// 创建 WebSocket Hub
	wsHub := ws.NewHub(logger)
	wsHub.SetInitDataProvider(func() *ws.InitData {
		units, err := unitRepo.List(ctx)
		if err != nil {
			logger.Error("Failed to list solar units for websocket init", zap.Error(err))
			return nil
		}
		return &ws.InitData{Units: units}
	})
	go wsHub.Run()

	// 定时生成
	drip := service.NewDripService(logger, gen, unitRepo, sink, wsHub, cfg.DripInterval)
	if cfg.DripEnabled {
		if err := drip.Start(ctx); err != nil {
			logger.Fatal("Failed to start drip service", zap.Error(err))
		}
	} else {
		logger.Info("Drip generation disabled")
	}

	backfill := service.NewBackfillService(logger, gen, sink)

	// 设置 Gin 模式
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(handlers.RequestLogger(logger))
	router.Use(handlers.CORS(cfg.CORSOrigin))

	handler := handlers.NewHandler(logger, readingRepo, unitRepo, backfill, wsHub)
	handler.RegisterRoutes(router)

	// 启动 HTTP 服务器
	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("addr", server.Addr))

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// 停止服务
	drip.Stop()
	backfill.Shutdown()

	// 优雅关闭
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	wsHub.Stop()

	logger.Info("Server exited")
}
