// cmd/main.go
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"go_training_keep/internal/config"
	"go_training_keep/internal/model"
	"go_training_keep/internal/repository"
	"go_training_keep/internal/service"
)

func main() {
	//　設定ファイル読み込み用の一時的なロガー設定
	tempLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(tempLogger)
	log.Println("Log Config Loading...")

	// Configを読み込み
	if err := config.LoadConfig("./configs"); err != nil {
		slog.Error("Error loading configuration", slog.Any("error", err))
		os.Exit(1)
	}

	// === 設定に基づいて slog ロガーを初期化 ===
	logLevel := new(slog.LevelVar)
	switch strings.ToLower(config.Cfg.Log.Level) {
	case "debug":
		logLevel.Set(slog.LevelDebug)
	case "info":
		logLevel.Set(slog.LevelInfo)
	case "warn", "warning":
		logLevel.Set(slog.LevelWarn)
	case "error":
		logLevel.Set(slog.LevelError)
	default:
		logLevel.Set(slog.LevelInfo)
		slog.Warn("Unknown log level specified in config, defaulting to INFO", slog.String("level", config.Cfg.Log.Level))
	}

	var handler slog.Handler
	appEnv := os.Getenv("APP_ENV")
	if strings.ToLower(appEnv) == "dev" {
		tintOpts := &tint.Options{
			Level:      logLevel,
			TimeFormat: time.RFC3339,
		}
		handler = tint.NewHandler(os.Stderr, tintOpts)
		tempLogger.Info("Using TINT log handler", slog.String("APP_ENV", appEnv))
	} else {
		jsonOpts := &slog.HandlerOptions{
			Level:     logLevel,
			AddSource: true,
		}
		handler = slog.NewJSONHandler(os.Stderr, jsonOpts)
		tempLogger.Info("Using JSON log handler", slog.String("APP_ENV", appEnv))
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	slog.Info("Application starting...", slog.String("app", config.AppName), slog.String("version", config.AppVersion))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. コンテンツツリー (MongoDB) への接続
	mongoDB, closeMongo, err := repository.NewMongo(ctx, config.Cfg.Mongo.URL, config.Cfg.Mongo.Database, logger)
	if err != nil {
		slog.Error("Error initializing MongoDB", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := closeMongo(shutdownCtx); err != nil {
			slog.Error("Error closing MongoDB connection", slog.Any("error", err))
		} else {
			slog.Info("MongoDB connection closed.")
		}
	}()

	// 2. 進捗ストア (PostgreSQL / GORM) への接続
	db, err := repository.NewDB(config.Cfg.Database.URL, logger)
	if err != nil {
		slog.Error("Error initializing database", slog.Any("error", err))
		os.Exit(1)
	}
	sqlDB, err := db.DB()
	if err != nil {
		slog.Error("Error getting underlying sql.DB from GORM", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := sqlDB.Close(); err != nil {
			slog.Error("Error closing database connection", slog.Any("error", err))
		} else {
			slog.Info("Database connection closed.")
		}
	}()

	// 進捗テーブルのマイグレーション
	if err := db.AutoMigrate(&model.ExecutionRecord{}); err != nil {
		slog.Error("Error migrating execution_records", slog.Any("error", err))
		os.Exit(1)
	}

	// 3. Dependency Injection
	contentRepo := repository.NewMongoContentRepository(mongoDB)
	execRepo := repository.NewGormExecutionRepository()

	progressService := service.NewProgressService(db, contentRepo, execRepo)
	publishService := service.NewPublishService(contentRepo, &config.Cfg)
	contentService := service.NewContentService(contentRepo, &config.Cfg)

	// ライブラリ本体はここまでで組み上がる。トランスポート層 (別系統) が
	// これらのサービスを受け取って公開する。
	_ = progressService
	_ = publishService
	_ = contentService

	slog.Info("Core services initialized. Waiting for shutdown signal...")
	<-ctx.Done()
	slog.Info("Shutdown signal received. Exiting...")
}
