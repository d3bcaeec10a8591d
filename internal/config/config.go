package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env            string        `mapstructure:"ENV"`
	Port           string        `mapstructure:"PORT"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	AdminKey       string        `mapstructure:"ADMIN_KEY"`
	CORSAllowed    string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	LogLevel       string        `mapstructure:"LOG_LEVEL"`

	ExtractorURL   string `mapstructure:"EXTRACTOR_URL"`
	SentimentURL   string `mapstructure:"SENTIMENT_URL"`
	EmbeddingURL   string `mapstructure:"EMBEDDING_URL"`
	EmbeddingModel string `mapstructure:"EMBEDDING_MODEL"`
	EmbeddingDim   int    `mapstructure:"EMBEDDING_DIM"`
	NotifyURL      string `mapstructure:"NOTIFY_URL"`
	GeocoderURL    string `mapstructure:"GEOCODER_URL"`

	DedupRadiusM         float64 `mapstructure:"DEDUP_RADIUS_M"`
	DedupWindowH         float64 `mapstructure:"DEDUP_WINDOW_H"`
	DedupThreshold       float64 `mapstructure:"DEDUP_THRESHOLD"`
	DedupSimilarityFloor float64 `mapstructure:"DEDUP_SIMILARITY_FLOOR"`
	DedupBorderline      string  `mapstructure:"DEDUP_BORDERLINE_ACTION"`
}

func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	v.SetDefault("ENV", "dev")
	v.SetDefault("PORT", "8080")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("EMBEDDING_MODEL", "text-embedding-3-small")
	v.SetDefault("EMBEDDING_DIM", 1536)
	v.SetDefault("DEDUP_RADIUS_M", 120.0)
	v.SetDefault("DEDUP_WINDOW_H", 48.0)
	v.SetDefault("DEDUP_THRESHOLD", 0.85)
	v.SetDefault("DEDUP_SIMILARITY_FLOOR", 0.7)
	v.SetDefault("DEDUP_BORDERLINE_ACTION", "merge")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
