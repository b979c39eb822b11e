// Package store provides storage backends for journey records.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/emoseum/journey/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) AddRecord(rec models.JourneyRecord) error {
	keywordsJSON, vadJSON, reviewJSON, err := encodeRecord(rec)
	if err != nil {
		slog.Error("PostgresStore AddRecord encode failed", "error", err, "id", rec.ID)
		return err
	}

	_, err = s.db.Exec(`INSERT INTO journey_records (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
		rec.ID, rec.RecordKey, rec.OwnerID, rec.DiaryText, keywordsJSON, vadJSON,
		rec.PromptText, rec.ImagePath, rec.Title, rec.GuidedQuestion, reviewJSON, rec.CreatedAt.UTC(),
		rec.CopingStyle, nilIfEmpty(rec.ExternalLinkID), rec.PromptGenerated, rec.PromptTokens,
		rec.ReviewGenerated, rec.ReviewTokens, rec.PromptSeconds, rec.PromptMethod, rec.ReviewMethod,
	)
	if err != nil {
		slog.Error("PostgresStore AddRecord failed", "error", err, "id", rec.ID)
		return fmt.Errorf("failed to insert record %s: %w", rec.ID, err)
	}
	slog.Debug("PostgresStore AddRecord succeeded", "id", rec.ID, "key", rec.RecordKey)
	return nil
}

func (s *PostgresStore) GetRecordByID(id string) (*models.JourneyRecord, error) {
	return s.getRecord("id", id)
}

func (s *PostgresStore) GetRecordByKey(key string) (*models.JourneyRecord, error) {
	return s.getRecord("record_key", key)
}

func (s *PostgresStore) getRecord(column, value string) (*models.JourneyRecord, error) {
	row := s.db.QueryRow(`SELECT `+recordColumns+` FROM journey_records WHERE `+column+` = $1`, value)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore getRecord not found", "column", column, "value", value)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore getRecord failed", "error", err, "column", column, "value", value)
		return nil, fmt.Errorf("failed to query record by %s: %w", column, err)
	}
	return &rec, nil
}

func (s *PostgresStore) UpdateTitle(id, title, guidedQuestion string) (int64, error) {
	res, err := s.db.Exec(`UPDATE journey_records SET title = $1, guided_question = $2 WHERE id = $3`,
		title, guidedQuestion, id)
	if err != nil {
		slog.Error("PostgresStore UpdateTitle failed", "error", err, "id", id)
		return 0, fmt.Errorf("failed to update title for %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	slog.Debug("PostgresStore UpdateTitle succeeded", "id", id, "modified", n)
	return n, nil
}

func (s *PostgresStore) UpdateReview(id string, review models.ReviewMessage, tokens int) (int64, error) {
	reviewJSON, err := json.Marshal(review)
	if err != nil {
		slog.Error("PostgresStore UpdateReview encode failed", "error", err, "id", id)
		return 0, fmt.Errorf("failed to encode review message: %w", err)
	}
	res, err := s.db.Exec(`UPDATE journey_records SET review_message = $1, review_tokens = $2 WHERE id = $3`,
		string(reviewJSON), tokens, id)
	if err != nil {
		slog.Error("PostgresStore UpdateReview failed", "error", err, "id", id)
		return 0, fmt.Errorf("failed to update review for %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	slog.Debug("PostgresStore UpdateReview succeeded", "id", id, "modified", n, "tokens", tokens)
	return n, nil
}

func (s *PostgresStore) ListOwnerRecords(ownerID string, q ListQuery) ([]models.JourneyRecord, error) {
	q = q.normalized()

	query := `SELECT ` + recordColumns + ` FROM journey_records WHERE owner_id = $1`
	args := []interface{}{ownerID}
	if q.DateFrom != nil {
		args = append(args, q.DateFrom.UTC())
		query += fmt.Sprintf(` AND created_at >= $%d`, len(args))
	}
	if q.DateTo != nil {
		args = append(args, q.DateTo.UTC())
		query += fmt.Sprintf(` AND created_at <= $%d`, len(args))
	}
	args = append(args, q.Limit, q.Offset)
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("PostgresStore ListOwnerRecords query failed", "error", err, "ownerID", ownerID)
		return nil, fmt.Errorf("failed to query records for %s: %w", ownerID, err)
	}
	defer rows.Close()

	var records []models.JourneyRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			slog.Error("PostgresStore ListOwnerRecords scan failed", "error", err, "ownerID", ownerID)
			return nil, fmt.Errorf("failed to scan record row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore ListOwnerRecords rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate record rows: %w", err)
	}
	slog.Debug("PostgresStore ListOwnerRecords succeeded", "ownerID", ownerID, "count", len(records))
	return records, nil
}

func (s *PostgresStore) CountRecords() (int64, error) {
	var n int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM journey_records`).Scan(&n); err != nil {
		slog.Error("PostgresStore CountRecords failed", "error", err)
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) CountGeneratedRecords() (int64, error) {
	var n int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM journey_records WHERE prompt_generated AND review_generated`).Scan(&n)
	if err != nil {
		slog.Error("PostgresStore CountGeneratedRecords failed", "error", err)
		return 0, fmt.Errorf("failed to count generated records: %w", err)
	}
	return n, nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close Postgres database", "error", err)
	}
	return err
}
