// internal/middleware/logging.go
package middleware

import (
	"context"
	"log/slog"
)

// logCtxKey はコンテキストにロガーを格納するためのキーです。
type logCtxKey struct{}

// WithLogger はリクエストスコープのロガーをコンテキストに格納します。
// ホスト側のトランスポート層がリクエストIDなどを付与したロガーを
// ここで仕込む想定。
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, logCtxKey{}, logger)
}

// GetLogger はコンテキストから slog.Logger を取得します。
// 未設定の場合はデフォルトロガーを返す。
func GetLogger(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(logCtxKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}
