package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/david/tender-finder/internal/api"
	"github.com/david/tender-finder/internal/config"
	"github.com/david/tender-finder/internal/db"
	"github.com/david/tender-finder/internal/embed"
	"github.com/david/tender-finder/internal/feedback"
	"github.com/david/tender-finder/internal/match"
	"github.com/david/tender-finder/internal/obs"
	"github.com/david/tender-finder/internal/similar"
	"github.com/david/tender-finder/internal/vectorstore"
)

func main() {
	cfg := config.Load()
	logger := obs.NewLogger("info", "console")

	registry := prometheus.NewRegistry()
	metrics := obs.NewMetrics(registry)

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool); err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})

	rawEmbedder := embed.NewClient(embed.Config{
		Endpoint:  cfg.EmbeddingEndpoint,
		ModelID:   cfg.EmbeddingModelID,
		Dimension: cfg.EmbeddingDimension,
		Timeout:   10 * time.Second,
	}, metrics, logger)
	embedder := embed.NewCachedEmbedder(rawEmbedder, redisClient, cfg.EmbeddingModelID, 24*time.Hour, metrics)

	vectors := vectorstore.NewStore(pool, metrics)
	store := db.NewStore(pool)

	matcher := match.New(store, store, vectors, embedder, match.Config{}, logger, metrics)

	feedTunables := feedback.Tunables{
		MinDiscoveredInterest:     config.DMinDiscoveredInterest,
		MaxDiscoveredInterests:    config.MaxDiscoveredInterests,
		ReembedInteractionCount:   config.NReembedInteractions,
		ReembedMinInterval:        cfg.ReembedMinInterval,
		DismissedPatternThreshold: config.DismissedPatternThreshold,
	}
	proc := feedback.New(store, embedder, vectors, feedTunables, logger, metrics)
	simSvc := similar.New(store, vectors)

	srv := api.NewServer(pool, matcher, proc, simSvc, embedder, logger)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		if err := http.ListenAndServe(":9090", mux); err != nil {
			logger.Warn("metrics server stopped", map[string]interface{}{"error": err.Error()})
		}
	}()

	logger.Info("server starting", map[string]interface{}{"port": cfg.Port})
	if err := srv.Start(cfg.Port); err != nil {
		log.Fatal(err)
	}
}
