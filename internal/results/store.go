package results

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"certprep/internal/quiz"
)

var ErrResultNotFound = errors.New("result not found")

type SubmissionRecord struct {
	Position      int      `json:"position"`
	QuestionID    string   `json:"question_id"`
	Choices       []string `json:"choices"`
	AttemptCount  int      `json:"attempt_count"`
	Correct       bool     `json:"correct"`
	PointsAwarded int      `json:"points_awarded"`
}

// SQLStore persists transcripts into session_results and session_submissions.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// SaveResult writes the summary and every per-question row in one transaction.
// Saving the same session again replaces the earlier run.
func (s *SQLStore) SaveResult(ctx context.Context, t quiz.Transcript) error {
	if err := validate(t); err != nil {
		return err
	}
	sum := summaryOf(t)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM session_submissions WHERE session_id = $1`, sum.SessionID); err != nil {
		return fmt.Errorf("clear submissions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM session_results WHERE session_id = $1`, sum.SessionID); err != nil {
		return fmt.Errorf("clear result: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO session_results (
			session_id, certification_id, certification_name, user_id, seed,
			correct_count, total_questions, total_points, max_points, percentage,
			pass_threshold, passed, started_at, completed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		sum.SessionID, sum.CertificationID, sum.CertificationName, sum.UserID, sum.Seed,
		sum.CorrectCount, sum.TotalQuestions, sum.TotalPoints, sum.MaxPoints, sum.Percentage,
		sum.PassThreshold, boolToInt(sum.Passed), sum.StartedAt.UnixMilli(), sum.CompletedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}

	for _, item := range t.Items {
		choices := item.Submissions
		if choices == nil {
			choices = []string{}
		}
		buf, err := json.Marshal(choices)
		if err != nil {
			return fmt.Errorf("encode submissions: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO session_submissions (
				session_id, position, question_id, choices_json, attempt_count, correct, points_awarded
			) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			sum.SessionID, item.Position, item.QuestionID, string(buf), item.Count, boolToInt(item.Correct), item.PointsAwarded,
		)
		if err != nil {
			return fmt.Errorf("insert submission %s: %w", item.QuestionID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

const summaryColumns = `session_id, certification_id, certification_name, user_id, seed,
	correct_count, total_questions, total_points, max_points, percentage,
	pass_threshold, passed, started_at, completed_at`

// ListByUser returns a user's results, newest first.
func (s *SQLStore) ListByUser(ctx context.Context, userID string, limit int) ([]Summary, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+summaryColumns+`
		FROM session_results WHERE user_id = $1
		ORDER BY completed_at DESC, session_id ASC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	out := make([]Summary, 0, 8)
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return out, nil
}

func (s *SQLStore) Get(ctx context.Context, sessionID string) (Summary, []SubmissionRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+summaryColumns+` FROM session_results WHERE session_id = $1`, sessionID)
	sum, err := scanSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Summary{}, nil, ErrResultNotFound
	}
	if err != nil {
		return Summary{}, nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT position, question_id, choices_json, attempt_count, correct, points_awarded
		FROM session_submissions WHERE session_id = $1 ORDER BY position ASC`, sessionID)
	if err != nil {
		return Summary{}, nil, fmt.Errorf("query submissions: %w", err)
	}
	defer rows.Close()

	subs := make([]SubmissionRecord, 0, sum.TotalQuestions)
	for rows.Next() {
		var (
			rec     SubmissionRecord
			raw     string
			correct int
		)
		if err := rows.Scan(&rec.Position, &rec.QuestionID, &raw, &rec.AttemptCount, &correct, &rec.PointsAwarded); err != nil {
			return Summary{}, nil, fmt.Errorf("scan submission: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &rec.Choices); err != nil {
			return Summary{}, nil, fmt.Errorf("decode submissions: %w", err)
		}
		rec.Correct = correct != 0
		subs = append(subs, rec)
	}
	if err := rows.Err(); err != nil {
		return Summary{}, nil, fmt.Errorf("iterate submissions: %w", err)
	}
	return sum, subs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSummary(row scanner) (Summary, error) {
	var (
		sum                  Summary
		passed               int
		startedMs, completed int64
	)
	err := row.Scan(
		&sum.SessionID, &sum.CertificationID, &sum.CertificationName, &sum.UserID, &sum.Seed,
		&sum.CorrectCount, &sum.TotalQuestions, &sum.TotalPoints, &sum.MaxPoints, &sum.Percentage,
		&sum.PassThreshold, &passed, &startedMs, &completed,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Summary{}, err
		}
		return Summary{}, fmt.Errorf("scan result: %w", err)
	}
	sum.Passed = passed != 0
	sum.StartedAt = time.UnixMilli(startedMs).UTC()
	sum.CompletedAt = time.UnixMilli(completed).UTC()
	return sum, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
