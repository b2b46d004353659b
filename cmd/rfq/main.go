package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/bitfantasy/nimo-rfq/internal/clock"
	"github.com/bitfantasy/nimo-rfq/internal/config"
	"github.com/bitfantasy/nimo-rfq/internal/middleware"
	"github.com/bitfantasy/nimo-rfq/internal/rfq/handler"
	"github.com/bitfantasy/nimo-rfq/internal/rfq/notify"
	"github.com/bitfantasy/nimo-rfq/internal/rfq/repository"
	"github.com/bitfantasy/nimo-rfq/internal/rfq/service"
	"github.com/bitfantasy/nimo-rfq/internal/rfq/sse"
	"github.com/bitfantasy/nimo-rfq/internal/rfq/storage"
	"github.com/bitfantasy/nimo-rfq/internal/rfq/syncclient"
	"github.com/bitfantasy/nimo-rfq/internal/rfq/viewstate"
	"github.com/bitfantasy/nimo-rfq/internal/shared/feishu"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

const apiPrefix = "/api/v1/rfq"

func main() {
	// 加载 .env 文件
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	zapLogger, err := initLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting nimo-rfq service",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
	)

	// 初始化数据库
	db, err := initDatabase(cfg.Database)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := db.AutoMigrate(repository.Models()...); err != nil {
		zapLogger.Warn("AutoMigrate rfq tables warning", zap.Error(err))
	}

	clk := clock.NewSystem()
	linkCache := initLinkCache(cfg, clk, zapLogger)

	// 附件存储
	blob, err := storage.NewBlobStore(cfg.MinIO)
	if err != nil {
		zapLogger.Fatal("Failed to init object storage", zap.Error(err))
	}
	if err := blob.EnsureBucket(context.Background(), cfg.MinIO.Region); err != nil {
		zapLogger.Warn("Object storage bucket not ready", zap.String("bucket", cfg.MinIO.Bucket), zap.Error(err))
	}

	// 通知：日志 + SSE toast + 飞书群卡片
	hub := sse.NewHub(zapLogger)
	notifiers := notify.Multi{notify.NewLogNotifier(zapLogger), notify.NewHubNotifier(hub)}
	var cards notify.CardSender
	var feishuNotifier *notify.FeishuNotifier
	if cfg.Feishu.AppID != "" && cfg.Feishu.AppSecret != "" {
		feishuClient := feishu.NewClient(cfg.Feishu.AppID, cfg.Feishu.AppSecret, cfg.Feishu.BaseURL)
		cards = feishuClient
		if cfg.Notify.FeishuChatID != "" {
			feishuNotifier = notify.NewFeishuNotifier(feishuClient, cfg.Notify.FeishuChatID, zapLogger)
			notifiers = append(notifiers, feishuNotifier)
		}
		zapLogger.Info("Feishu client initialized")
	}

	repos := repository.NewRepositories(db)
	store := viewstate.NewStore(hub)
	mutator := viewstate.NewMutator(store, notifiers, cfg.Sync.BulkConcurrency, zapLogger)
	syncClient := syncclient.NewClient(repos.Quote, blob, store, linkCache, syncclient.OptionsFrom(cfg.Sync), zapLogger)

	services := service.NewServices(service.Deps{
		Repos:    repos,
		Sync:     syncClient,
		Store:    store,
		Mutator:  mutator,
		Blob:     blob,
		Notifier: notifiers,
		Cards:    cards,
		ChatID:   cfg.Notify.FeishuChatID,
		Clock:    clk,
		Logger:   zapLogger,
	})
	handlers := handler.NewHandlers(services, hub, store)

	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(zapLogger))
	router.Use(middleware.CORS())
	router.Use(middleware.RequestID())
	router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{apiPrefix + "/sse"})))

	registerRoutes(router, handlers, cfg)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: 0, // SSE
	}

	go func() {
		zapLogger.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}
	// 等待后台写入（隐藏/取消隐藏）和飞书通知结束
	mutator.Wait()
	if feishuNotifier != nil {
		feishuNotifier.Wait()
	}

	zapLogger.Info("Server exited")
}

func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config

	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch cfg.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}

	return zapCfg.Build()
}

func initDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return db, nil
}

func initRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

// initLinkCache prefers Redis so every instance shares signed links; an
// unreachable Redis falls back to a process-local cache.
func initLinkCache(cfg *config.Config, clk clock.Clock, zapLogger *zap.Logger) syncclient.LinkCache {
	if cfg.Redis.Host != "" {
		rdb := initRedis(cfg.Redis)
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Sync.LinkTimeout)
		defer cancel()
		err := rdb.Ping(ctx).Err()
		if err == nil {
			zapLogger.Info("Link cache backed by redis", zap.String("addr", rdb.Options().Addr))
			return syncclient.NewRedisLinkCache(rdb, cfg.Sync.LinkCacheTTL)
		}
		zapLogger.Warn("Redis unavailable, using in-memory link cache", zap.Error(err))
		rdb.Close()
	}
	return syncclient.NewMemoryLinkCache(cfg.Sync.LinkCacheTTL, clk)
}

func registerRoutes(r *gin.Engine, h *handler.Handlers, cfg *config.Config) {
	// 健康检查
	r.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/health/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// 版本信息
	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    Version,
			"build_time": BuildTime,
		})
	})

	api := r.Group(apiPrefix, middleware.JWTAuth(cfg.JWT.Secret))
	handler.RegisterRoutes(api, h)
}
