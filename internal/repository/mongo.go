// internal/repository/mongo.go
package repository

import (
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// NewMongo はコンテンツツリー用の MongoDB 接続を確立します。
// 戻り値の close 関数は main の defer で呼ぶこと。
func NewMongo(ctx context.Context, uri, dbName string, appLogger *slog.Logger) (*mongo.Database, func(context.Context) error, error) {
	opts := options.Client().ApplyURI(uri)
	opts.SetMaxPoolSize(100)
	opts.SetMinPoolSize(10)

	client, err := mongo.Connect(opts)
	if err != nil {
		appLogger.Error("Failed to connect to MongoDB", slog.Any("error", err))
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Pingで接続確認
	if err := client.Ping(ctx, nil); err != nil {
		appLogger.Error("Error pinging MongoDB", slog.Any("error", err))
		_ = client.Disconnect(ctx)
		return nil, nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	appLogger.Info("MongoDB connection established", slog.String("database", dbName))
	return client.Database(dbName), client.Disconnect, nil
}
