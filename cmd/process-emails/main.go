package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"clientreports/internal/config"
	"clientreports/internal/database"
	"clientreports/internal/emails"
	"clientreports/internal/embeddings"
	"clientreports/internal/models"
	"clientreports/internal/openai"
	"clientreports/internal/tasks"
)

func main() {
	taskType := flag.String("type", string(models.TaskGenerateEmbeddings), "task to run: generate_embeddings, summarize_emails or process_new_emails")
	limit := flag.Int("limit", 0, "batch size for embeddings, message cap for summaries (0 = default)")
	ids := flag.String("ids", "", "comma-separated message ids for process_new_emails")
	flag.Parse()

	params := models.TaskParams{Limit: *limit}
	for _, id := range strings.Split(*ids, ",") {
		if id = strings.TrimSpace(id); id != "" {
			params.MessageIDs = append(params.MessageIDs, id)
		}
	}
	if !models.TaskType(*taskType).Valid() {
		fmt.Fprintf(os.Stderr, "unknown task type %q\n", *taskType)
		os.Exit(2)
	}

	// Load configuration
	cfg := config.Load()
	logger := cfg.SetupLogger()

	logger.Info().Str("type", *taskType).Int("limit", *limit).Msg("Email processing job starting")

	writeClient, err := database.NewWriteClient(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database with write access")
	}
	defer writeClient.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.AutoMigrate {
		if _, err := database.Migrate(ctx, writeClient, database.Migrations(cfg.EmbeddingDimensions), logger); err != nil {
			logger.Fatal().Err(err).Msg("Schema migration failed")
		}
	}

	var (
		batcher    tasks.BatchEmbedder
		summarizer tasks.Summarizer
	)
	if aiClient, err := openai.NewClient(cfg, logger); err != nil {
		logger.Warn().Err(err).Msg("Embedding API not configured, nothing will be generated")
	} else {
		batcher, summarizer = aiClient, aiClient
	}

	repo := emails.NewRepository(writeClient, logger)
	processor := tasks.NewProcessor(repo, embeddings.NewStore(writeClient, logger), batcher, summarizer,
		cfg.EmbeddingBatchSize, cfg.SummaryDelay(), logger)

	start := time.Now()
	task := processor.RunSync(ctx, models.TaskType(*taskType), params)

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(task); err != nil {
		logger.Error().Err(err).Msg("Failed to write task result")
	}

	logger.Info().Str("status", string(task.Status)).Dur("took", time.Since(start)).Msg("Email processing job finished")
	if task.Status == models.TaskFailed {
		os.Exit(1)
	}
}
