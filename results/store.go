package results

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"
)

// ResultStore persists a finished benchmark summary for the plotting step.
type ResultStore interface {
	SaveSummary(summary *Summary) error
}

// FileStore writes the summary as indented JSON, the artifact the external
// plotter consumes.
type FileStore struct {
	Path string
}

// SaveSummary writes the summary to the configured path.
func (f *FileStore) SaveSummary(summary *Summary) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding summary: %w", err)
	}
	if err := os.WriteFile(f.Path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}
	return nil
}

// PostgresStore persists summaries to PostgreSQL so runs can be compared
// across machines and revisions.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects using a lib/pq DSN and creates the schema.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS bench_runs (
		id SERIAL PRIMARY KEY,
		generated_at TIMESTAMP WITH TIME ZONE NOT NULL,
		scheme TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS aggregate_records (
		run_id INTEGER NOT NULL REFERENCES bench_runs(id) ON DELETE CASCADE,
		level INTEGER NOT NULL,
		count INTEGER NOT NULL,
		failure_count INTEGER NOT NULL,
		retries INTEGER NOT NULL,
		mean_ns BIGINT NOT NULL,
		p50_ns BIGINT NOT NULL,
		p95_ns BIGINT NOT NULL,
		p99_ns BIGINT NOT NULL,
		min_ns BIGINT NOT NULL,
		max_ns BIGINT NOT NULL,
		PRIMARY KEY (run_id, level)
	);

	CREATE INDEX IF NOT EXISTS idx_records_level ON aggregate_records(level);
	`

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// SaveSummary inserts the run and its records in one transaction.
func (s *PostgresStore) SaveSummary(summary *Summary) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var runID int
	err = tx.QueryRowContext(ctx,
		"INSERT INTO bench_runs (generated_at, scheme) VALUES ($1, $2) RETURNING id",
		summary.GeneratedAt, summary.Scheme).Scan(&runID)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	for _, rec := range summary.Records {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO aggregate_records
				(run_id, level, count, failure_count, retries, mean_ns, p50_ns, p95_ns, p99_ns, min_ns, max_ns)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			runID, rec.Level, rec.Count, rec.FailureCount, rec.Retries,
			int64(rec.Mean), int64(rec.P50), int64(rec.P95), int64(rec.P99),
			int64(rec.Min), int64(rec.Max),
		)
		if err != nil {
			return fmt.Errorf("inserting record for level %d: %w", rec.Level, err)
		}
	}

	return tx.Commit()
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
