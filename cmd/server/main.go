package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blogpulse/internal/config"
	"github.com/blogpulse/internal/db"
	"github.com/blogpulse/internal/handler"
	"github.com/blogpulse/internal/logging"
	"github.com/blogpulse/internal/notify"
	"github.com/blogpulse/internal/observability"
	"github.com/blogpulse/internal/router"
	"github.com/blogpulse/internal/service"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

func main() {
	config.LoadDotEnv()
	cfg := config.Load()
	logger := logging.New(cfg.AppEnv)
	gin.SetMode(cfg.GinMode)

	// 配置不完整时仍然启动，受保护的路由统一返回配置错误。
	configErr := cfg.Validate()
	if configErr != nil {
		logger.Error().Err(configErr).Msg("configuration incomplete; requests will be refused")
	}

	var gdb *gorm.DB
	if cfg.DatabaseURL != "" {
		if err := db.Init(cfg.DatabaseURL, cfg.DatabasePassword); err != nil {
			logger.Error().Err(err).Msg("failed to initialize database")
			configErr = config.AddInvalid(configErr, "DATABASE_URL")
		} else {
			gdb = db.DB
		}
	}

	metrics := observability.NewMetrics()
	publisher := notify.New(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer publisher.Close()

	var statsService *service.StatsService
	if gdb != nil {
		statsService = service.NewStatsService(gdb).
			WithPublisher(publisher).
			WithMetrics(metrics).
			WithLogger(logger.With().Str("component", "stats").Logger()).
			WithTimeout(cfg.StorageTimeout)
	}

	aiClient := service.NewAIChatClient(service.AIClientOptions{
		Provider: cfg.AIProvider,
		APIKey:   cfg.AIAPIKey,
		Model:    cfg.AIModel,
		BaseURL:  cfg.AIBaseURL,
		Logger:   logger.With().Str("component", "ai").Logger(),
	})
	narratives := service.NewNarrativeService(aiClient).
		WithTimeout(cfg.AITimeout).
		WithMetrics(metrics).
		WithLogger(logger.With().Str("component", "narrative").Logger())

	api := handler.NewAPI(gdb, statsService, narratives, cfg.AnalysisWindowDays).
		WithLogger(logger.With().Str("component", "http").Logger())

	r := router.SetupRouter(router.Options{
		API:       api,
		ConfigErr: configErr,
		APISecret: cfg.APISecret,
		Metrics:   metrics,
		Logger:    logger,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info().
			Str("addr", cfg.ListenAddr).
			Str("ai_provider", aiClient.Provider()).
			Bool("kafka", len(cfg.KafkaBrokers) > 0).
			Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("failed to run server")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}
