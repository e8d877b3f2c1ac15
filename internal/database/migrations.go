package database

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Migration is a named, apply-once schema upgrade
type Migration struct {
	Name       string
	Statements []string
	// Optional migrations may fail (e.g. pgvector not installed); they are
	// left unrecorded so the next startup retries them.
	Optional bool
}

// Migrations returns the ordered schema history for the given embedding dimension
func Migrations(dimensions int) []Migration {
	return []Migration{
		{
			Name: "001_create_messages",
			Statements: []string{
				`CREATE TABLE IF NOT EXISTS messages (
					id VARCHAR(255) PRIMARY KEY,
					subject TEXT NOT NULL DEFAULT '',
					from_addr TEXT NOT NULL DEFAULT '',
					to_addr TEXT NOT NULL DEFAULT '',
					date VARCHAR(32) NOT NULL,
					body TEXT NOT NULL DEFAULT '',
					summary TEXT NOT NULL DEFAULT '',
					labels TEXT[] NOT NULL DEFAULT '{}',
					embedding TEXT,
					processed_for_vector BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
					updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
				)`,
			},
		},
		{
			Name:     "002_enable_vector",
			Optional: true,
			Statements: []string{
				`CREATE EXTENSION IF NOT EXISTS vector`,
				fmt.Sprintf(`ALTER TABLE messages ALTER COLUMN embedding TYPE vector(%d) USING embedding::vector`, dimensions),
				// HNSW index for fast cosine similarity search with pgvector
				`CREATE INDEX IF NOT EXISTS idx_messages_embedding_hnsw ON messages USING hnsw (embedding vector_cosine_ops)`,
			},
		},
		{
			Name: "003_add_cc_bcc",
			Statements: []string{
				`ALTER TABLE messages ADD COLUMN IF NOT EXISTS cc TEXT`,
				`ALTER TABLE messages ADD COLUMN IF NOT EXISTS bcc TEXT`,
			},
		},
		{
			Name: "004_create_clients",
			Statements: []string{
				`CREATE TABLE IF NOT EXISTS clients (
					id BIGSERIAL PRIMARY KEY,
					name TEXT NOT NULL,
					domains TEXT[] NOT NULL DEFAULT '{}',
					emails TEXT[] NOT NULL DEFAULT '{}',
					user_id VARCHAR(255),
					created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
					updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX IF NOT EXISTS idx_clients_user_id ON clients(user_id)`,
			},
		},
		{
			Name: "005_create_report_templates",
			Statements: []string{
				`CREATE TABLE IF NOT EXISTS report_templates (
					id BIGSERIAL PRIMARY KEY,
					name TEXT NOT NULL,
					content TEXT NOT NULL,
					user_id VARCHAR(255),
					created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
					updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
				)`,
			},
		},
		{
			Name: "006_create_report_feedback",
			Statements: []string{
				`CREATE TABLE IF NOT EXISTS report_feedback (
					id BIGSERIAL PRIMARY KEY,
					report_id VARCHAR(255) NOT NULL,
					client_id BIGINT REFERENCES clients(id) ON DELETE SET NULL,
					rating INT NOT NULL CHECK (rating BETWEEN 1 AND 5),
					comment TEXT NOT NULL DEFAULT '',
					user_id VARCHAR(255),
					created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
				)`,
			},
		},
		{
			Name: "007_message_indexes",
			Statements: []string{
				`CREATE INDEX IF NOT EXISTS idx_messages_date ON messages(date DESC)`,
				`CREATE INDEX IF NOT EXISTS idx_messages_unprocessed ON messages(processed_for_vector) WHERE processed_for_vector = FALSE`,
				`CREATE INDEX IF NOT EXISTS idx_messages_unsummarized ON messages(date) WHERE summary = ''`,
			},
		},
	}
}

// Migrate creates the migrations log and applies every migration not yet recorded.
// It returns the names applied during this call.
func Migrate(ctx context.Context, wc *WriteClient, migrations []Migration, logger zerolog.Logger) ([]string, error) {
	if _, err := wc.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS migrations (
		id SERIAL PRIMARY KEY,
		name VARCHAR(255) UNIQUE NOT NULL,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	var applied []string
	for _, m := range migrations {
		var done bool
		if err := wc.GetContext(ctx, &done, `SELECT EXISTS(SELECT 1 FROM migrations WHERE name = $1)`, m.Name); err != nil {
			return applied, fmt.Errorf("failed to check migration %s: %w", m.Name, err)
		}
		if done {
			continue
		}

		if err := runStatements(ctx, wc, m.Statements); err != nil {
			if m.Optional {
				logger.Warn().Err(err).Str("migration", m.Name).Msg("Optional migration failed, will retry on next start")
				continue
			}
			return applied, fmt.Errorf("migration %s failed: %w", m.Name, err)
		}

		if _, err := wc.ExecContext(ctx, `INSERT INTO migrations (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, m.Name); err != nil {
			return applied, fmt.Errorf("failed to record migration %s: %w", m.Name, err)
		}
		logger.Info().Str("migration", m.Name).Msg("Migration applied")
		applied = append(applied, m.Name)
	}

	return applied, nil
}

func runStatements(ctx context.Context, wc *WriteClient, statements []string) error {
	for _, stmt := range statements {
		if _, err := wc.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
