package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/azhengyongqin/novelhub/internal/cache"
	"github.com/azhengyongqin/novelhub/internal/config"
	"github.com/azhengyongqin/novelhub/internal/filestore"
	"github.com/azhengyongqin/novelhub/internal/healthcheck"
	"github.com/azhengyongqin/novelhub/internal/hub"
	"github.com/azhengyongqin/novelhub/internal/logger"
	"github.com/azhengyongqin/novelhub/internal/processor"
	"github.com/azhengyongqin/novelhub/internal/repository"
	httpserver "github.com/azhengyongqin/novelhub/internal/server"
	"github.com/azhengyongqin/novelhub/internal/storage/postgres"
)

// 说明：
// - 一个进程同时承载 Gin(HTTP/WebSocket) 和 asynq 处理器，便于本地与容器部署。
// - 并发帽（MAX_CONCURRENT_TASKS）映射为 asynq 的 worker 并发数。

func main() {
	// 初始化结构化日志（开发模式）
	if err := logger.Init(false); err != nil {
		logger.L.Fatal().Err(err).Msg("初始化日志失败")
		os.Exit(1)
	}
	defer logger.Sync()

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		logger.L.Fatal().Err(err).Msg("加载配置失败")
	}

	// 验证配置
	if err := cfg.Validate(); err != nil {
		logger.L.Fatal().Err(err).Msg("配置验证失败")
	}

	logger.L.Info().
		Str("http", cfg.HTTP.Addr).
		Int("max_concurrent", cfg.Task.MaxConcurrent).
		Msg("服务启动")

	// 数据库连接（使用配置的连接池参数）
	dbCfg := postgres.DBConfig{
		MaxOpenConns:    cfg.DBPool.MaxConns,
		MaxIdleConns:    cfg.DBPool.MinConns,
		ConnMaxLifetime: cfg.DBPool.MaxConnLifetime,
		ConnMaxIdleTime: cfg.DBPool.MaxConnIdleTime,
	}

	db, err := postgres.NewDBWithConfig(context.Background(), cfg.Postgres.DSN, dbCfg)
	if err != nil {
		logger.L.Fatal().Err(err).Msg("连接数据库失败")
	}
	defer db.Close()

	sqlDB, err := db.SqlDB()
	if err != nil {
		logger.L.Fatal().Err(err).Msg("获取底层连接失败")
	}

	// 应用数据库迁移
	if err := postgres.ApplyMigrationsFromDir(context.Background(), sqlDB, "migrations"); err != nil {
		logger.L.Fatal().Err(err).Msg("应用数据库迁移失败")
	}

	taskRepo := repository.NewTaskRepo(db.DB)

	// Redis 缓存（任务状态快速路径）
	redisCache, err := cache.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.L.Fatal().Err(err).Msg("连接 Redis 失败")
	}
	defer redisCache.Close()

	// 上传文件存储
	files, err := filestore.New(cfg.Upload.Dir)
	if err != nil {
		logger.L.Fatal().Err(err).Msg("初始化上传目录失败")
	}

	// WebSocket hub
	wsHub := hub.New()

	// Asynq client：用于 HTTP 入队
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()

	enqueuer := processor.NewEnqueuer(asynqClient, cfg.Task.Timeout)

	// Asynq server：模拟处理器，worker 并发数即任务并发帽
	asynqSrv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Task.MaxConcurrent,
	})
	mux := asynq.NewServeMux()
	processor.New(taskRepo, redisCache, wsHub).RegisterHandlers(mux)

	go func() {
		if err := asynqSrv.Run(mux); err != nil {
			logger.L.Fatal().Err(err).Msg("asynq 服务错误")
		}
	}()

	// 创建健康检查器
	healthChecker := healthcheck.NewHealthChecker(sqlDB, cfg.Redis.Addr)

	httpSrv := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: httpserver.NewRouter(httpserver.Deps{
			Config:        cfg,
			TaskRepo:      taskRepo,
			Cache:         redisCache,
			Files:         files,
			Enqueuer:      enqueuer,
			Hub:           wsHub,
			HealthChecker: healthChecker,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.L.Info().Str("addr", cfg.HTTP.Addr).Msg("HTTP 服务监听")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.L.Fatal().Err(err).Msg("HTTP 服务错误")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	asynqSrv.Shutdown()
	_ = httpSrv.Shutdown(shutdownCtx)
	logger.L.Info().Msg("服务已优雅关闭")
}
