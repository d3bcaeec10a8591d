package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/civicsense/backend/internal/ai"
	"github.com/civicsense/backend/internal/config"
	"github.com/civicsense/backend/internal/db"
	"github.com/civicsense/backend/internal/geocode"
	httpapi "github.com/civicsense/backend/internal/http"
	"github.com/civicsense/backend/internal/notify"
	"github.com/civicsense/backend/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	logger := log.Level(level).With().Str("service", "civicsense-backend").Logger()

	ctx := context.Background()
	store, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect db")
	}
	defer store.Close()

	var extractor ai.Extractor
	if cfg.ExtractorURL == "" {
		extractor = ai.MockExtractor{}
		logger.Info().Msg("using mock extractor")
	} else {
		extractor = ai.HTTPExtractor{BaseURL: cfg.ExtractorURL}
	}

	var sentiment ai.SentimentClassifier
	if cfg.SentimentURL == "" {
		sentiment = ai.MockSentiment{}
		logger.Info().Msg("using mock sentiment classifier")
	} else {
		sentiment = ai.HTTPSentiment{BaseURL: cfg.SentimentURL}
	}

	var embeddings ai.EmbeddingProvider
	if cfg.EmbeddingURL == "" {
		embeddings = ai.MockEmbedding{Dim: cfg.EmbeddingDim}
		logger.Info().Msg("using mock embedding provider")
	} else {
		embeddings = ai.HTTPEmbedding{
			BaseURL: cfg.EmbeddingURL,
			Model:   cfg.EmbeddingModel,
			APIKey:  os.Getenv("EMBEDDING_API_KEY"),
		}
	}

	var notifier notify.Notifier
	if cfg.NotifyURL == "" {
		notifier = notify.LogNotifier{Logger: logger}
	} else {
		notifier = notify.HTTPNotifier{BaseURL: cfg.NotifyURL}
	}

	geocoder := &geocode.NominatimGeocoder{BaseURL: cfg.GeocoderURL}

	dedupCfg := service.DedupConfig{
		RadiusM:         cfg.DedupRadiusM,
		WindowH:         cfg.DedupWindowH,
		Threshold:       cfg.DedupThreshold,
		SimilarityFloor: cfg.DedupSimilarityFloor,
		BorderlineMerge: cfg.DedupBorderline != "review",
	}

	engine := &service.DedupEngine{
		Store:      store,
		Embeddings: embeddings,
		Cfg:        dedupCfg,
		Logger:     logger.With().Str("component", "dedup").Logger(),
	}
	merger := &service.MergeManager{
		Store:  store,
		Logger: logger.With().Str("component", "merge").Logger(),
	}
	orchestrator := &service.Orchestrator{
		Store:        store,
		Extractor:    extractor,
		Sentiment:    sentiment,
		Geocoder:     geocoder,
		Notifier:     notifier,
		Dedup:        engine,
		Merge:        merger,
		Logger:       logger.With().Str("component", "workflow").Logger(),
		StageTimeout: cfg.RequestTimeout,
	}
	recovery := &service.RecoveryProcessor{
		Store:        store,
		Orchestrator: orchestrator,
		Logger:       logger.With().Str("component", "recovery").Logger(),
	}

	router := httpapi.Router(cfg, store, orchestrator, recovery, logger)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctxShutdown)
	logger.Info().Msg("server stopped")
}
