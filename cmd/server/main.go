package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/playerpulse/internal/api"
	"github.com/ignite/playerpulse/internal/artifact"
	"github.com/ignite/playerpulse/internal/assistant"
	"github.com/ignite/playerpulse/internal/config"
	"github.com/ignite/playerpulse/internal/insights"
	"github.com/ignite/playerpulse/internal/metrics"
	"github.com/ignite/playerpulse/internal/repository/postgres"
	"github.com/ignite/playerpulse/internal/schema"
	"github.com/ignite/playerpulse/internal/source/snowflake"
)

func main() {
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pipeline := insights.NewPipeline(cfg)

	// Artifact store: local JSON with optional S3 mirror.
	artifacts, err := artifact.New(ctx, cfg.Artifact)
	if err != nil {
		log.Fatalf("Failed to initialize artifact store: %v", err)
	}
	pipeline.WithArtifacts(artifacts)

	// Optional Postgres repositories for derived artifacts.
	if cfg.Postgres.Enabled {
		db, err := sql.Open("postgres", cfg.Postgres.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to open postgres: %v", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			log.Fatalf("Postgres unreachable: %v", err)
		}
		pipeline.WithSinks(postgres.NewChurnRepo(db), postgres.NewSegmentRepo(db))
		log.Println("Postgres artifact repositories enabled")
	}

	// Optional Redis series cache.
	var cache *metrics.Cache
	if cfg.Cache.Enabled {
		client := redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Printf("Redis unreachable, series cache disabled: %v", err)
		} else {
			cache = metrics.NewCache(client, time.Duration(cfg.Cache.TTLSeconds)*time.Second)
			log.Printf("Redis series cache enabled at %s", cfg.Cache.RedisAddr)
		}
	}

	// Optional Bedrock insight generator.
	var generator assistant.InsightGenerator
	if cfg.Assistant.Enabled {
		gen, err := assistant.NewBedrockGenerator(ctx, cfg.Assistant)
		if err != nil {
			log.Printf("Bedrock unavailable, assistant disabled: %v", err)
		} else {
			generator = gen
		}
	}

	aggregator := insights.NewAggregator(pipeline)
	normalizer := schema.NewNormalizer(cfg.Schema)

	// Optional warehouse bootstrap: ingest the events table on startup so the
	// dashboard has a session before the first upload.
	if cfg.Warehouse.Enabled {
		if err := bootstrapFromWarehouse(ctx, cfg, normalizer, aggregator); err != nil {
			log.Printf("Warehouse bootstrap failed: %v", err)
		}
	}

	handlers := api.NewHandlers(aggregator, normalizer, cache, generator)
	server := api.NewServer(cfg.Server, handlers)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Printf("Starting server on %s", addr)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	log.Println("Server stopped")
}

const warehouseFetchLimit = 500000

func bootstrapFromWarehouse(ctx context.Context, cfg *config.Config, norm *schema.Normalizer, agg *insights.Aggregator) error {
	client, err := snowflake.NewClient(cfg.Warehouse)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Ping(ctx); err != nil {
		return fmt.Errorf("pinging warehouse: %w", err)
	}

	table, err := client.FetchEvents(ctx, warehouseFetchLimit)
	if err != nil {
		return err
	}
	events, quality, err := norm.Normalize(table)
	if err != nil {
		return fmt.Errorf("normalizing warehouse events: %w", err)
	}

	session := agg.Ingest(ctx, events, quality)
	log.Printf("Warehouse bootstrap complete: dataset %s with %d events",
		session.ID(), session.Report.TotalEvents)
	return nil
}
