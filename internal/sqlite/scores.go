package sqlite

import (
	"context"
	"fmt"
	"time"
)

// Score is one row of the evaluation audit log.
type Score struct {
	ID              string
	DocumentID      string
	Filename        string
	MatchFilename   string
	SimilarityScore float64
	UniquenessScore float64
	IsUnique        bool
	Action          string
	Timestamp       time.Time
}

// RecordScore appends an entry to the audit log.
func (s *Store) RecordScore(ctx context.Context, score Score) error {
	if score.ID == "" {
		return fmt.Errorf("score id is required")
	}
	if score.Timestamp.IsZero() {
		score.Timestamp = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scores (id, document_id, filename, match_filename, similarity_score, uniqueness_score, is_unique, action, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, score.ID, score.DocumentID, score.Filename, score.MatchFilename,
		score.SimilarityScore, score.UniquenessScore, boolToInt(score.IsUnique), score.Action,
		score.Timestamp.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("recording score: %w", err)
	}
	return nil
}

// Scores returns audit entries, newest first. limit <= 0 returns all.
// An empty documentID matches every document.
func (s *Store) Scores(ctx context.Context, documentID string, limit int) ([]Score, error) {
	query := `SELECT id, document_id, filename, match_filename, similarity_score, uniqueness_score, is_unique, action, timestamp
		FROM scores`
	var args []any
	if documentID != "" {
		query += " WHERE document_id = ?"
		args = append(args, documentID)
	}
	query += " ORDER BY timestamp DESC, rowid DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying scores: %w", err)
	}
	defer rows.Close()

	var out []Score
	for rows.Next() {
		var (
			score    Score
			isUnique int
			ts       string
		)
		if err := rows.Scan(&score.ID, &score.DocumentID, &score.Filename, &score.MatchFilename,
			&score.SimilarityScore, &score.UniquenessScore, &isUnique, &score.Action, &ts); err != nil {
			return nil, fmt.Errorf("scanning score: %w", err)
		}
		score.IsUnique = isUnique != 0
		if score.Timestamp, err = time.Parse(timeLayout, ts); err != nil {
			return nil, fmt.Errorf("parsing score timestamp %q: %w", ts, err)
		}
		out = append(out, score)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
