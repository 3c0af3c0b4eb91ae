package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xhad/ragd/pkg/config"
	"github.com/xhad/ragd/pkg/fetcher"
	"github.com/xhad/ragd/pkg/ingest"
	"github.com/xhad/ragd/pkg/llm"
	"github.com/xhad/ragd/pkg/processor"
	"github.com/xhad/ragd/pkg/query"
	"github.com/xhad/ragd/pkg/queue"
	"github.com/xhad/ragd/pkg/store"
	"github.com/xhad/ragd/pkg/worker"
	"github.com/xhad/ragd/server"
	"go.uber.org/zap"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			log.Printf("config: %v", e)
		}
		log.Fatal("invalid configuration")
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("ragd exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	jobs, err := store.NewJobStore(pool, store.JobStoreConfig{
		TableName: cfg.Database.JobsTable,
	})
	if err != nil {
		return err
	}

	knowledge, err := store.NewKnowledgeStore(pool, store.KnowledgeStoreConfig{
		TableName: cfg.Database.ChunkTable,
		VectorDim: cfg.Database.VectorDim,
	})
	if err != nil {
		return err
	}

	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Model:   cfg.LLM.EmbedModel,
		BaseURL: cfg.LLM.BaseURL,
	})
	if err != nil {
		return err
	}

	chatEngine, err := llm.NewWithConfig(llm.ChatConfig{
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		BaseURL:     cfg.LLM.BaseURL,
	})
	if err != nil {
		return err
	}

	fetch := fetcher.NewWithConfig(fetcher.FetcherConfig{
		Timeout:   cfg.FetchTimeout(),
		RateLimit: cfg.Fetcher.RateLimit,
		UserAgent: cfg.Fetcher.UserAgent,
	})

	splitter := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:      cfg.Processor.ChunkSize,
		ChunkOverlap:   cfg.Processor.ChunkOverlap,
		MinChunkLength: cfg.Processor.MinChunkLength,
	})

	taskQueue := queue.NewWithConfig(queue.QueueConfig{
		Size:         cfg.Worker.QueueSize,
		MaxAttempts:  cfg.Worker.MaxAttempts,
		RetryBackoff: cfg.RetryBackoff(),
	}, logger)
	defer taskQueue.Close()

	w, err := worker.New(worker.WorkerConfig{
		Concurrency: cfg.Worker.Concurrency,
	}, jobs, knowledge, fetch, &splitter, embedder, taskQueue, logger)
	if err != nil {
		return err
	}
	defer w.Release()

	ingestSvc := ingest.NewService(jobs, taskQueue, logger)
	querySvc := query.NewService(query.ServiceConfig{
		TopK:     cfg.Query.TopK,
		MinScore: cfg.Query.MinScore,
	}, embedder, knowledge, chatEngine, logger)

	if maxAge := cfg.PendingMaxAge(); maxAge > 0 {
		sweeper, err := ingest.NewSweeper(jobs, taskQueue, maxAge, cfg.Worker.SweepSchedule, logger)
		if err != nil {
			return err
		}
		sweeper.Start()
		defer sweeper.Stop()
	}

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		w.Run(ctx)
	}()

	srv := server.New(server.Config{
		Port:        cfg.Server.Port,
		CORSOrigins: cfg.Server.CORSOrigins,
	}, ingestSvc, querySvc, chatEngine, logger)

	err = srv.Run(ctx)
	<-workerDone
	return err
}
