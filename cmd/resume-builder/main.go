package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"resume-builder-go/internal/api/handler"
	"resume-builder-go/internal/api/router"
	"resume-builder-go/internal/builder"
	"resume-builder-go/internal/config"
	"resume-builder-go/internal/generator"
	"resume-builder-go/internal/llm"
	applogger "resume-builder-go/internal/logger"
	"resume-builder-go/internal/storage"
	"resume-builder-go/internal/tracing"

	"github.com/cloudwego/hertz/pkg/app/server"
	glog "github.com/cloudwego/hertz/pkg/common/hlog"
	hertzadapter "github.com/hertz-contrib/logger/zerolog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"github.com/spf13/pflag"
)

func main() {
	var configPath string
	pflag.StringVarP(&configPath, "config", "c", "internal/config/config.yaml", "Path to config file")
	pflag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		glog.Fatalf("加载配置失败: %v", err)
	}

	initLogger(cfg)
	applogger.Info().Str("config", configPath).Msg("配置加载成功")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 链路追踪
	shutdownTracing, err := tracing.InitProvider(ctx, cfg.Tracing)
	if err != nil {
		applogger.Fatal().Err(err).Msg("初始化链路追踪失败")
	}
	defer func() {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		if err := shutdownTracing(shutdownCtx); err != nil {
			applogger.Error().Err(err).Msg("关闭链路追踪失败")
		}
	}()

	storageManager, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		applogger.Fatal().Err(err).Msg("初始化存储失败")
	}
	defer storageManager.Close()
	applogger.Info().Msg("存储服务初始化成功")

	// 预声明简历事件交换机，发布路径上不再反复declare
	if storageManager.RabbitMQ != nil && cfg.RabbitMQ.ResumeEventsExchange != "" {
		if err := storageManager.RabbitMQ.EnsureExchange(cfg.RabbitMQ.ResumeEventsExchange, "topic", true); err != nil {
			applogger.Warn().Err(err).Msg("声明简历事件交换机失败, 事件发布可能降级")
		}
	}

	// LLM聊天模型
	modelName := cfg.Generator.ModelName
	if modelName == "" {
		modelName = cfg.GetModelForTask("content_generation")
	}
	chatModel, err := llm.NewAliyunQwenChatModel(
		cfg.Aliyun.APIKey,
		modelName,
		cfg.Aliyun.APIURL,
		llm.WithTemperature(cfg.Generator.Temperature),
		llm.WithMaxTokens(cfg.Generator.MaxTokens),
	)
	if err != nil {
		applogger.Fatal().Err(err).Msg("初始化LLM聊天模型失败")
	}
	applogger.Info().Str("model", modelName).Msg("LLM聊天模型初始化成功")

	// 内容生成器
	contentGenerator := generator.NewContentGenerator(
		chatModel,
		generator.WithRequestTimeout(config.GetDuration(cfg.Generator.RequestTimeout, 30*time.Second)),
		generator.WithMaxRetries(cfg.Generator.MaxRetries),
		generator.WithRetryWait(time.Duration(cfg.Generator.RetryWaitSeconds)*time.Second),
	)

	// 会话状态机与控制器
	machine := builder.NewMachine(contentGenerator, builder.WithMaxRegenAttempts(cfg.Builder.MaxRegenAttempts))

	controllerOptions := []builder.ControllerOption{}
	if storageManager.MinIO != nil {
		controllerOptions = append(controllerOptions, builder.WithSessionArchiver(storageManager.MinIO))
	}
	if storageManager.RabbitMQ != nil {
		controllerOptions = append(controllerOptions, builder.WithEventPublisher(storageManager.RabbitMQ))
	}
	controller := builder.NewController(storageManager.Sessions, machine, storageManager.MySQL, controllerOptions...)
	applogger.Info().Msg("构建器控制器初始化成功")

	builderHandler := handler.NewBuilderHandler(cfg, controller)
	resumeHandler := handler.NewResumeHandler(cfg, storageManager)
	suggestHandler := handler.NewSuggestHandler(cfg, contentGenerator)

	// 会话统计，过期会话由Redis TTL回收，这里只定期上报存活数
	go reportActiveSessions(ctx, storageManager.Sessions)

	tracer, tracerCfg := hertztracing.NewServerTracer()
	h := server.New(
		server.WithHostPorts(cfg.Server.Address),
		server.WithHandleMethodNotAllowed(true),
		tracer,
	)
	h.Use(hertztracing.ServerMiddleware(tracerCfg))

	router.RegisterRoutes(h, cfg, storageManager, builderHandler, resumeHandler, suggestHandler)
	applogger.Info().Str("address", cfg.Server.Address).Msg("HTTP路由注册成功, 服务器启动中")

	go func() {
		if err := h.Run(); err != nil {
			applogger.Fatal().Err(err).Msg("启动HTTP服务器失败")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	applogger.Info().Msg("接收到终止信号, 正在优雅退出...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := h.Shutdown(shutdownCtx); err != nil {
		applogger.Error().Err(err).Msg("服务器关闭失败")
	}
	applogger.Info().Msg("优雅退出完成")
}

// initLogger 初始化应用日志并接管Hertz的框架日志
func initLogger(cfg *config.Config) {
	applogger.Init(applogger.Config{
		Level:        cfg.Logger.Level,
		Format:       cfg.Logger.Format,
		TimeFormat:   cfg.Logger.TimeFormat,
		ReportCaller: cfg.Logger.ReportCaller,
	})

	hertzCompatibleLogger := hertzadapter.From(applogger.Logger)
	glog.SetLogger(hertzCompatibleLogger)
}

// reportActiveSessions 每小时上报一次存活会话数
func reportActiveSessions(ctx context.Context, sessions *storage.SessionStore) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			count, err := sessions.CountActive(ctx)
			if err != nil {
				applogger.Warn().Err(err).Msg("统计存活会话数失败")
				continue
			}
			applogger.Info().Int64("active_sessions", count).Msg("构建器会话统计")
		case <-ctx.Done():
			return
		}
	}
}
