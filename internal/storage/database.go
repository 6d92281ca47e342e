// Package storage persists review receipts. Only outcomes are recorded,
// never code or diff content.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	// import db drivers
	_ "github.com/lib/pq"
)

// Review run outcomes.
const (
	StatusPublished  = "published"
	StatusFailed     = "failed"
	StatusSuperseded = "superseded"
)

// ReviewRecord is the receipt of one pipeline run.
type ReviewRecord struct {
	ID           int64          `db:"id"`
	RepoFullName string         `db:"repo_full_name"`
	PRNumber     int            `db:"pr_number"`
	HeadSHA      string         `db:"head_sha"`
	Status       string         `db:"status"`
	ReviewID     sql.NullInt64  `db:"review_id"`
	FailureStage sql.NullString `db:"failure_stage"`
	CreatedAt    time.Time      `db:"created_at"`
}

// Store defines the receipt persistence operations.
type Store interface {
	SaveReview(ctx context.Context, rec *ReviewRecord) error
	LatestReview(ctx context.Context, repoFullName string, prNumber int) (*ReviewRecord, error)
}

type postgresStore struct {
	db *sqlx.DB
}

// NewStore creates a Postgres-backed Store.
func NewStore(db *sqlx.DB) Store {
	return &postgresStore{db: db}
}

// SaveReview inserts a new receipt.
func (s *postgresStore) SaveReview(ctx context.Context, rec *ReviewRecord) error {
	query := `INSERT INTO reviews (repo_full_name, pr_number, head_sha, status, review_id, failure_stage, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := s.db.ExecContext(ctx, query,
		rec.RepoFullName, rec.PRNumber, rec.HeadSHA, rec.Status, rec.ReviewID, rec.FailureStage, time.Now())
	return err
}

// LatestReview returns the most recent receipt for a pull request, or nil
// when the PR has never been processed.
func (s *postgresStore) LatestReview(ctx context.Context, repoFullName string, prNumber int) (*ReviewRecord, error) {
	query := `
		SELECT id, repo_full_name, pr_number, head_sha, status, review_id, failure_stage, created_at
		FROM reviews
		WHERE repo_full_name = $1 AND pr_number = $2
		ORDER BY created_at DESC
		LIMIT 1`

	var rec ReviewRecord
	err := s.db.GetContext(ctx, &rec, query, repoFullName, prNumber)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// noopStore is used when no database is configured.
type noopStore struct{}

// NewNoopStore returns a Store that records nothing.
func NewNoopStore() Store {
	return noopStore{}
}

func (noopStore) SaveReview(context.Context, *ReviewRecord) error { return nil }

func (noopStore) LatestReview(context.Context, string, int) (*ReviewRecord, error) {
	return nil, nil
}
