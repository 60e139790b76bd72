// internal/config/config.go
package config

import (
	"log"

	"github.com/spf13/viper"
)

type Config struct {
	Database struct {
		URL string `mapstructure:"url"` // 進捗ストア (PostgreSQL)
	} `mapstructure:"database"`
	Mongo struct {
		URL      string `mapstructure:"url"` // コンテンツツリー (MongoDB)
		Database string `mapstructure:"database"`
	} `mapstructure:"mongo"`
	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
	App struct {
		PageSize int `mapstructure:"page_size"`
		// 公開時にサムネイル未指定のプログラムへ付与するデフォルト画像URL。
		// クエリ構築側が環境変数を直接読むのではなく、ここから明示的に渡す。
		DefaultThumbnailURL string `mapstructure:"default_thumbnail_url"`
	} `mapstructure:"app"`
}

var Cfg Config

func LoadConfig(path string) error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(path)
	viper.AddConfigPath(".")

	// 環境変数からの上書き (例: APP_MONGO_URL)
	viper.SetEnvPrefix("APP")
	viper.AutomaticEnv()
	viper.BindEnv("database.url", "DATABASE_URL")
	viper.BindEnv("mongo.url", "MONGO_URL")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("Warning: Config file not found. Using default settings or environment variables if available.")
		} else {
			log.Printf("Error reading config file: %s\n", err)
			return err
		}
	}

	if err := viper.Unmarshal(&Cfg); err != nil {
		log.Printf("Error unmarshalling config: %s\n", err)
		return err
	}

	// --- デフォルト値の設定 ---
	if Cfg.Log.Level == "" {
		Cfg.Log.Level = DefaultLogLevel
	}
	if Cfg.App.PageSize <= 0 {
		log.Println("App page size not set or invalid, using default")
		Cfg.App.PageSize = DefaultPageSize
	}
	if Cfg.App.DefaultThumbnailURL == "" {
		Cfg.App.DefaultThumbnailURL = DefaultThumbnailURL
	}
	if Cfg.Mongo.Database == "" {
		Cfg.Mongo.Database = DefaultMongoDatabase
	}
	if Cfg.Database.URL == "" {
		log.Println("Warning: Database URL is not set in config.")
	}
	if Cfg.Mongo.URL == "" {
		log.Println("Warning: Mongo URL is not set in config.")
	}

	log.Println("Config loaded successfully")
	log.Printf("Page Size: %d", Cfg.App.PageSize)
	log.Printf("Mongo Database: %s", Cfg.Mongo.Database)

	return nil
}
