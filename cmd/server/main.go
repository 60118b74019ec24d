package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"uptime/api/middleware"
	"uptime/api/server"
	"uptime/internal/agent"
	"uptime/internal/alert"
	"uptime/internal/config"
	"uptime/internal/database"
	"uptime/internal/elasticsearch"
	grpcserver "uptime/internal/grpc"
	"uptime/internal/history"
	"uptime/internal/logger"
	"uptime/internal/monitor"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var (
	configFile = flag.String("config", "etc/config.yaml", "Path to configuration file")
	version    = "1.0.0"
)

func main() {
	flag.Parse()

	// 优先从配置文件加载，如果失败则从环境变量加载
	var cfg *config.Config
	watchPath := ""
	if _, err := os.Stat(*configFile); err == nil {
		cfg, err = config.LoadFromFile(*configFile)
		if err != nil {
			fmt.Printf("Failed to load config from file: %v\n", err)
			fmt.Println("Falling back to environment variables...")
			cfg = config.Load()
		} else {
			watchPath = *configFile
		}
	} else {
		fmt.Println("Config file not found, loading from environment variables...")
		cfg = config.Load()
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志系统
	if err := logger.Init(cfg.Logger.Level, cfg.Logger.Output); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting uptime service",
		zap.String("version", version),
		zap.String("config_file", watchPath),
	)

	// 初始化数据库
	if err := database.InitDB(database.Config{
		Driver:       cfg.Database.Driver,
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		DBName:       cfg.Database.DBName,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
	}); err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	store := database.NewStore(database.GetDB())
	defer store.Close()

	logger.Info("Database initialized",
		zap.String("driver", cfg.Database.Driver),
		zap.String("database", cfg.Database.DBName),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 初始化 Elasticsearch（如果启用）
	esClient, err := elasticsearch.NewClient(cfg.Elasticsearch)
	if err != nil {
		logger.Fatal("Failed to initialize Elasticsearch", zap.Error(err))
	}
	if esClient != nil {
		if err := esClient.CreateIndexTemplate(ctx); err != nil {
			logger.Warn("Failed to create index template", zap.Error(err))
		}
		logger.Info("Elasticsearch initialized")
	} else {
		logger.Info("Elasticsearch is disabled")
	}

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal("Invalid timezone", zap.Error(err))
	}

	// 组装服务
	historyService := history.NewService(store, loc)
	dispatcher := alert.NewDispatcher(store, alert.NewRegistry(nil),
		time.Duration(cfg.Alert.DispatchTimeout)*time.Second, cfg.Alert.RatePerSecond)
	alertService := alert.NewService(store, dispatcher)
	alertService.SetEnabled(cfg.Alert.Enabled)

	monitorService := monitor.NewService(store, monitor.NewHTTPChecker(), historyService, alertService, monitor.Options{
		Workers:        cfg.Monitor.Workers,
		QueueSize:      cfg.Monitor.QueueSize,
		DefaultTimeout: time.Duration(cfg.Monitor.DefaultTimeout) * time.Second,
	})
	if esClient != nil {
		monitorService.SetArchiver(esClient)
	}
	agentService := agent.NewService(store, alertService, time.Duration(cfg.Agent.OfflineAfter)*time.Second)

	// 定时任务
	scheduler := cron.New(
		cron.WithLogger(logger.CronLogger()),
		cron.WithChain(cron.SkipIfStillRunning(logger.CronLogger())),
	)
	if _, err := monitorService.Schedule(scheduler, cfg.Monitor.TickSpec); err != nil {
		logger.Fatal("Failed to schedule monitor tick", zap.Error(err))
	}
	if _, err := agentService.Schedule(scheduler, cfg.Agent.SweepSpec); err != nil {
		logger.Fatal("Failed to schedule agent sweep", zap.Error(err))
	}

	monitorService.Start()
	scheduler.Start()

	limiter := middleware.NewIPRateLimiter(cfg.RateLimit)
	gin.SetMode(gin.ReleaseMode)
	httpServer := server.NewServer(server.Deps{
		Store:    store,
		Monitors: monitorService,
		History:  historyService,
		Alerts:   alertService,
		Agents:   agentService,
		ES:       esClient,
		Limiter:  limiter,
	}, watchPath, cfg)

	grpcServer, health := grpcserver.NewGRPCServer(grpcserver.NewServer(monitorService, agentService))

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		limiter.Run(ctx)
	}()

	// 配置热加载
	if watchPath != "" {
		watcher := config.NewWatcher(watchPath, func(next *config.Config) {
			logger.SetLevel(next.Logger.Level)
			alertService.SetEnabled(next.Alert.Enabled)
			dispatcher.SetRate(next.Alert.RatePerSecond)
			limiter.Apply(next.RateLimit)
			httpServer.SetConfig(next)
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := watcher.Watch(ctx); err != nil {
				logger.Warn("Config watcher stopped", zap.Error(err))
			}
		}()
	}

	// 启动HTTP服务器
	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := httpServer.Run(ctx, httpAddr); err != nil {
			logger.Error("HTTP server failed", zap.Error(err))
			stop()
		}
	}()

	// 启动gRPC服务器
	grpcAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GRPCPort)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := grpcserver.StartServer(grpcAddr, grpcServer); err != nil {
			logger.Error("gRPC server failed", zap.Error(err))
			stop()
		}
	}()

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logger.Warn("Failed to notify systemd", zap.Error(err))
	} else if ok {
		logger.Debug("Notified systemd readiness")
	}

	logger.Info("Uptime service is running",
		zap.Int("http_port", cfg.Server.HTTPPort),
		zap.Int("grpc_port", cfg.Server.GRPCPort),
	)

	<-ctx.Done()
	logger.Info("Shutting down...")
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	// 优雅关闭：先停止调度，再等待进行中的检查
	health.Shutdown()
	<-scheduler.Stop().Done()
	grpcServer.GracefulStop()
	monitorService.Stop()
	wg.Wait()

	logger.Info("Uptime service stopped")
}
