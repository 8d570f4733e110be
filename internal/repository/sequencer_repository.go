package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// SequencerRepository assigns attempt numbers. Numbers are handed out
// durably and atomically per (user, assessment) pair so that two
// simultaneous starts never share an attempt number.
type SequencerRepository struct {
	db *sql.DB
}

func NewSequencerRepository(db *sql.DB) *SequencerRepository {
	return &SequencerRepository{db: db}
}

func (r *SequencerRepository) NextAttemptNumber(ctx context.Context, userID, assessmentID string) (int, error) {
	query := `
		INSERT INTO attempt_counters (user_id, assessment_id, last_attempt_number, updated_at)
		VALUES ($1, $2, 1, CURRENT_TIMESTAMP)
		ON CONFLICT (user_id, assessment_id) DO UPDATE SET
			last_attempt_number = attempt_counters.last_attempt_number + 1,
			updated_at = CURRENT_TIMESTAMP
		RETURNING last_attempt_number
	`

	var attemptNumber int
	err := r.db.QueryRowContext(ctx, query, userID, assessmentID).Scan(&attemptNumber)
	if err != nil {
		return 0, fmt.Errorf("failed to assign attempt number: %w", err)
	}
	return attemptNumber, nil
}

func (r *SequencerRepository) LastAttemptNumber(ctx context.Context, userID, assessmentID string) (int, error) {
	query := `
		SELECT last_attempt_number
		FROM attempt_counters
		WHERE user_id = $1 AND assessment_id = $2
	`

	var attemptNumber int
	err := r.db.QueryRowContext(ctx, query, userID, assessmentID).Scan(&attemptNumber)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get last attempt number: %w", err)
	}
	return attemptNumber, nil
}
