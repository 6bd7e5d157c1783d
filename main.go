package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/codefox-spec/AI-Assisted-Autonomous-Ground-Combat-Vehicle/config"
	"github.com/codefox-spec/AI-Assisted-Autonomous-Ground-Combat-Vehicle/handler"
	"github.com/codefox-spec/AI-Assisted-Autonomous-Ground-Combat-Vehicle/middleware"
	"github.com/codefox-spec/AI-Assisted-Autonomous-Ground-Combat-Vehicle/service"
	"github.com/codefox-spec/AI-Assisted-Autonomous-Ground-Combat-Vehicle/stream"
	"github.com/codefox-spec/AI-Assisted-Autonomous-Ground-Combat-Vehicle/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	BuildID   = "unknown"
	GitCommit = "unknown"
	GitBranch = "unknown"
)

func main() {
	// 加载配置
	cfg := config.New()
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	if err := utils.InitLogger(cfg.Server.Mode); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer utils.Sync()

	utils.Logger.Info("starting UGCV server",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
		zap.String("git_branch", GitBranch),
		zap.Int("cameras", len(cfg.Cameras)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 状态存储，Redis 不可用时只保存在内存
	status := service.NewStatusStore(&cfg.Redis)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	if err := status.Ping(pingCtx); err != nil {
		utils.Logger.Warn("redis connection failed, status mirror disabled", zap.Error(err))
	} else if status.Mirrored() {
		utils.Logger.Info("redis connected successfully", zap.String("addr", cfg.Redis.Addr))
	}
	cancel()

	// 所有摄像头共用检测器副本池
	detector, err := service.NewDetector(&cfg.Detector)
	if err != nil {
		utils.Logger.Fatal("failed to load detector", zap.Error(err))
	}
	utils.Logger.Info("detector ready",
		zap.String("backend", cfg.Detector.Backend),
		zap.Int("copies", detector.Size()))

	hub := handler.NewEventHub(0)
	opts := service.OptionsFromConfig(&cfg.Pipeline)
	opts.OnDetection = hub.Publish

	var (
		publishers []*stream.Publisher
		runners    []*service.Runner
	)
	for _, cam := range cfg.Cameras {
		pub := stream.NewPublisher(cam.Name)
		publishers = append(publishers, pub)

		runner, err := service.OpenRunner(ctx, cam, detector, opts, pub, status)
		if err != nil {
			// 端点保留但已关闭，客户端连接后立即结束
			utils.Logger.Error("camera unavailable",
				zap.String("camera", cam.Name),
				zap.Int("device_index", cam.DeviceIndex),
				zap.Error(err))
			continue
		}
		runners = append(runners, runner)
	}
	if len(runners) == 0 {
		utils.Logger.Warn("no camera available, serving closed streams only")
	}

	streams := handler.NewStreamHandler(publishers...)
	indexHandler := handler.NewIndexHandler(streams.Names())
	cameraHandler := handler.NewCameraHandler(status, streams)

	// 设置Gin模式
	gin.SetMode(cfg.Server.Mode)

	// 创建路由
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger("/health"))
	r.Use(middleware.CORS())

	r.GET("/", indexHandler.Index)
	streams.Register(r)

	// 健康检查和版本信息
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"version": Version,
			"cameras": len(runners),
		})
	})

	r.GET("/version", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"version":    Version,
			"build_time": BuildTime,
			"build_id":   BuildID,
			"git_commit": GitCommit,
			"git_branch": GitBranch,
		})
	})

	// API路由
	api := r.Group("/api/v1")
	{
		api.GET("/cameras", cameraHandler.List)
		api.GET("/cameras/:name", cameraHandler.Get)
	}
	r.GET("/ws/detections", hub.Handle)

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, runner := range runners {
		g.Go(func() error {
			return runner.Run(gctx)
		})
	}
	g.Go(func() error {
		return hub.Run(gctx)
	})
	g.Go(func() error {
		utils.Logger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		utils.Logger.Info("shutting down")

		// 管线结束后发布端点关闭，视频流连接随之结束
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	runErr := g.Wait()
	closeErr := multierr.Combine(detector.Close(), status.Close())
	if err := multierr.Append(runErr, closeErr); err != nil {
		utils.Logger.Error("server stopped with errors", zap.Error(err))
		return
	}
	utils.Logger.Info("server stopped")
}
