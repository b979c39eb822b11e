// Package store provides storage backends for journey records.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/emoseum/journey/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) AddRecord(rec models.JourneyRecord) error {
	keywordsJSON, vadJSON, reviewJSON, err := encodeRecord(rec)
	if err != nil {
		slog.Error("SQLiteStore AddRecord encode failed", "error", err, "id", rec.ID)
		return err
	}

	_, err = s.db.Exec(`INSERT INTO journey_records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RecordKey, rec.OwnerID, rec.DiaryText, keywordsJSON, vadJSON,
		rec.PromptText, rec.ImagePath, rec.Title, rec.GuidedQuestion, reviewJSON, rec.CreatedAt.UTC(),
		rec.CopingStyle, nilIfEmpty(rec.ExternalLinkID), rec.PromptGenerated, rec.PromptTokens,
		rec.ReviewGenerated, rec.ReviewTokens, rec.PromptSeconds, rec.PromptMethod, rec.ReviewMethod,
	)
	if err != nil {
		slog.Error("SQLiteStore AddRecord failed", "error", err, "id", rec.ID)
		return fmt.Errorf("failed to insert record %s: %w", rec.ID, err)
	}
	slog.Debug("SQLiteStore AddRecord succeeded", "id", rec.ID, "key", rec.RecordKey)
	return nil
}

func (s *SQLiteStore) GetRecordByID(id string) (*models.JourneyRecord, error) {
	return s.getRecord("id", id)
}

func (s *SQLiteStore) GetRecordByKey(key string) (*models.JourneyRecord, error) {
	return s.getRecord("record_key", key)
}

func (s *SQLiteStore) getRecord(column, value string) (*models.JourneyRecord, error) {
	row := s.db.QueryRow(`SELECT `+recordColumns+` FROM journey_records WHERE `+column+` = ?`, value)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore getRecord not found", "column", column, "value", value)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore getRecord failed", "error", err, "column", column, "value", value)
		return nil, fmt.Errorf("failed to query record by %s: %w", column, err)
	}
	return &rec, nil
}

func (s *SQLiteStore) UpdateTitle(id, title, guidedQuestion string) (int64, error) {
	res, err := s.db.Exec(`UPDATE journey_records SET title = ?, guided_question = ? WHERE id = ?`,
		title, guidedQuestion, id)
	if err != nil {
		slog.Error("SQLiteStore UpdateTitle failed", "error", err, "id", id)
		return 0, fmt.Errorf("failed to update title for %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	slog.Debug("SQLiteStore UpdateTitle succeeded", "id", id, "modified", n)
	return n, nil
}

func (s *SQLiteStore) UpdateReview(id string, review models.ReviewMessage, tokens int) (int64, error) {
	reviewJSON, err := json.Marshal(review)
	if err != nil {
		slog.Error("SQLiteStore UpdateReview encode failed", "error", err, "id", id)
		return 0, fmt.Errorf("failed to encode review message: %w", err)
	}
	res, err := s.db.Exec(`UPDATE journey_records SET review_message = ?, review_tokens = ? WHERE id = ?`,
		string(reviewJSON), tokens, id)
	if err != nil {
		slog.Error("SQLiteStore UpdateReview failed", "error", err, "id", id)
		return 0, fmt.Errorf("failed to update review for %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	slog.Debug("SQLiteStore UpdateReview succeeded", "id", id, "modified", n, "tokens", tokens)
	return n, nil
}

func (s *SQLiteStore) ListOwnerRecords(ownerID string, q ListQuery) ([]models.JourneyRecord, error) {
	q = q.normalized()

	query := `SELECT ` + recordColumns + ` FROM journey_records WHERE owner_id = ?`
	args := []interface{}{ownerID}
	if q.DateFrom != nil {
		query += ` AND created_at >= ?`
		args = append(args, q.DateFrom.UTC())
	}
	if q.DateTo != nil {
		query += ` AND created_at <= ?`
		args = append(args, q.DateTo.UTC())
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, q.Limit, q.Offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("SQLiteStore ListOwnerRecords query failed", "error", err, "ownerID", ownerID)
		return nil, fmt.Errorf("failed to query records for %s: %w", ownerID, err)
	}
	defer rows.Close()

	var records []models.JourneyRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			slog.Error("SQLiteStore ListOwnerRecords scan failed", "error", err, "ownerID", ownerID)
			return nil, fmt.Errorf("failed to scan record row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore ListOwnerRecords rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate record rows: %w", err)
	}
	slog.Debug("SQLiteStore ListOwnerRecords succeeded", "ownerID", ownerID, "count", len(records))
	return records, nil
}

func (s *SQLiteStore) CountRecords() (int64, error) {
	var n int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM journey_records`).Scan(&n); err != nil {
		slog.Error("SQLiteStore CountRecords failed", "error", err)
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) CountGeneratedRecords() (int64, error) {
	var n int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM journey_records WHERE prompt_generated = 1 AND review_generated = 1`).Scan(&n)
	if err != nil {
		slog.Error("SQLiteStore CountGeneratedRecords failed", "error", err)
		return 0, fmt.Errorf("failed to count generated records: %w", err)
	}
	return n, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}
