// internal/config/constants.go
package config

// アプリケーション情報
const (
	AppName    = "TrainingKeep"
	AppVersion = "1.0.0"
)

// デフォルト設定値
const (
	DefaultLogLevel      = "info"
	DefaultPageSize      = 20
	DefaultMongoDatabase = "training_keep"
	DefaultThumbnailURL  = "https://assets.training-keep.example/images/program_placeholder.png"
)
