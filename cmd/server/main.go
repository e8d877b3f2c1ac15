package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clientreports/internal/config"
	"clientreports/internal/database"
	"clientreports/internal/emails"
	"clientreports/internal/embeddings"
	"clientreports/internal/graph"
	"clientreports/internal/openai"
	"clientreports/internal/server"
	"clientreports/internal/tasks"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Setup logger
	logger := cfg.SetupLogger()

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Database connection failed")
	}
	logger.Info().Msg("Database connection established successfully")
	writeClient := database.WrapDB(db)
	defer writeClient.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.AutoMigrate {
		applied, err := database.Migrate(ctx, writeClient, database.Migrations(cfg.EmbeddingDimensions), logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Schema migration failed")
		}
		logger.Info().Strs("applied", applied).Msg("Schema up to date")
	}

	repo := emails.NewRepository(writeClient, logger)
	vectorStore := embeddings.NewStore(writeClient, logger)

	clientService, err := database.NewClientService(writeClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create client service")
	}

	// The model API is optional: without it search falls back to keywords and
	// background tasks skip embedding and summaries.
	var (
		embedder   embeddings.Embedder
		batcher    tasks.BatchEmbedder
		summarizer tasks.Summarizer
	)
	if aiClient, err := openai.NewClient(cfg, logger); err != nil {
		logger.Warn().Err(err).Msg("Embedding API not configured")
	} else {
		embedder, batcher, summarizer = aiClient, aiClient, aiClient
	}

	processor := tasks.NewProcessor(repo, vectorStore, batcher, summarizer, cfg.EmbeddingBatchSize, cfg.SummaryDelay(), logger)
	queue := tasks.NewQueue(processor, cfg.TaskRetention(), logger)
	queue.Start(ctx)

	var remote emails.RemoteSource
	if cfg.HasGraphCredentials() {
		identity := graph.NewClientCredentialsIdentity(ctx, cfg.GraphTenantID, cfg.GraphClientID, cfg.GraphClientSecret)
		remote = graph.NewProvider(cfg, identity, repo, logger)
		logger.Info().Str("mailbox", cfg.GraphMailbox).Msg("Mail provider configured")
	} else {
		logger.Warn().Msg("Mail provider credentials missing, serving stored messages only")
	}

	search := embeddings.NewSearchEngine(embedder, vectorStore, logger)
	fetcher := emails.NewFetcher(repo, search, remote, queue, cfg.GraphMailbox, logger)

	srv := server.New(cfg, db, server.Dependencies{
		Fetcher:  fetcher,
		Clients:  clientService,
		Messages: repo,
		Tasks:    queue,
		Vectors:  vectorStore,
	}, logger)
	srv.Initialize()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP shutdown incomplete")
	}
	if err := queue.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Background task still running at exit")
	}
}
