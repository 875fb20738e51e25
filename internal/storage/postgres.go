package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/cyderes/wod-ingestion-service/internal/config"
	"github.com/cyderes/wod-ingestion-service/internal/models"
)

// PostgreSQLStorage implements Storage interface using PostgreSQL
type PostgreSQLStorage struct {
	db          *sql.DB
	sessions    string
	statusTable string
}

// NewPostgreSQLStorage opens a connection pool and creates the tables if needed
func NewPostgreSQLStorage(cfg config.StorageConfig) (*PostgreSQLStorage, error) {
	connector, err := pq.NewConnector(cfg.PostgresURI)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres uri: %w", err)
	}
	db := sql.OpenDB(connector)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	storage := newPostgreSQLStorage(db, cfg.TableName)
	if err := storage.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}
	return storage, nil
}

func newPostgreSQLStorage(db *sql.DB, table string) *PostgreSQLStorage {
	return &PostgreSQLStorage{
		db:          db,
		sessions:    pq.QuoteIdentifier(table),
		statusTable: pq.QuoteIdentifier(table + "_status"),
	}
}

func (p *PostgreSQLStorage) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS ` + p.sessions + ` (
			date       DATE NOT NULL,
			session    TEXT NOT NULL,
			warm_up    TEXT,
			segment_a  TEXT,
			segment_b  TEXT,
			segment_c  TEXT,
			segment_d  TEXT,
			segment_e  TEXT,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (date, session)
		)`,
		`CREATE TABLE IF NOT EXISTS ` + p.statusTable + ` (
			id                  TEXT PRIMARY KEY,
			last_successful_run TIMESTAMPTZ NOT NULL,
			last_attempt        TIMESTAMPTZ NOT NULL,
			status              TEXT NOT NULL,
			error_message       TEXT NOT NULL DEFAULT '',
			posts_processed     INTEGER NOT NULL DEFAULT 0,
			records_ingested    INTEGER NOT NULL DEFAULT 0,
			records_skipped     INTEGER NOT NULL DEFAULT 0
		)`,
	}
	for _, stmt := range statements {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// PutSession upserts the record on its (date, session) primary key
func (p *PostgreSQLStorage) PutSession(ctx context.Context, record models.DateRecord) error {
	query := `INSERT INTO ` + p.sessions + ` (date, session, warm_up, segment_a, segment_b, segment_c, segment_d, segment_e, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (date, session) DO UPDATE SET
			warm_up = EXCLUDED.warm_up,
			segment_a = EXCLUDED.segment_a,
			segment_b = EXCLUDED.segment_b,
			segment_c = EXCLUDED.segment_c,
			segment_d = EXCLUDED.segment_d,
			segment_e = EXCLUDED.segment_e,
			updated_at = now()`

	_, err := p.db.ExecContext(ctx, query,
		record.Date, record.Session,
		record.WarmUp, record.SegmentA, record.SegmentB, record.SegmentC, record.SegmentD, record.SegmentE)
	if err != nil {
		return fmt.Errorf("failed to store session %s: %w", record.Key(), err)
	}
	return nil
}

// UpdateIngestionStatus upserts the single status row
func (p *PostgreSQLStorage) UpdateIngestionStatus(ctx context.Context, status models.IngestionStatus) error {
	query := `INSERT INTO ` + p.statusTable + ` (id, last_successful_run, last_attempt, status, error_message, posts_processed, records_ingested, records_skipped)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			last_successful_run = EXCLUDED.last_successful_run,
			last_attempt = EXCLUDED.last_attempt,
			status = EXCLUDED.status,
			error_message = EXCLUDED.error_message,
			posts_processed = EXCLUDED.posts_processed,
			records_ingested = EXCLUDED.records_ingested,
			records_skipped = EXCLUDED.records_skipped`

	_, err := p.db.ExecContext(ctx, query, statusID,
		status.LastSuccessfulRun, status.LastAttempt, status.Status, status.ErrorMessage,
		status.PostsProcessed, status.RecordsIngested, status.RecordsSkipped)
	if err != nil {
		return fmt.Errorf("failed to store ingestion status: %w", err)
	}
	return nil
}

// GetIngestionStatus retrieves the current ingestion status
func (p *PostgreSQLStorage) GetIngestionStatus(ctx context.Context) (*models.IngestionStatus, error) {
	query := `SELECT last_successful_run, last_attempt, status, error_message, posts_processed, records_ingested, records_skipped
		FROM ` + p.statusTable + ` WHERE id = $1`

	var status models.IngestionStatus
	err := p.db.QueryRowContext(ctx, query, statusID).Scan(
		&status.LastSuccessfulRun, &status.LastAttempt, &status.Status, &status.ErrorMessage,
		&status.PostsProcessed, &status.RecordsIngested, &status.RecordsSkipped)
	if errors.Is(err, sql.ErrNoRows) {
		return neverRun(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ingestion status: %w", err)
	}
	return &status, nil
}

// Close closes the connection pool
func (p *PostgreSQLStorage) Close() error {
	return p.db.Close()
}
