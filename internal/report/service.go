package report

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"certprep/internal/identity"
	"certprep/internal/quiz"
	"certprep/internal/results"
)

type historyStore interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]results.Summary, error)
	Get(ctx context.Context, sessionID string) (results.Summary, []results.SubmissionRecord, error)
}

// Detail is one persisted result with its per-question submissions.
type Detail struct {
	Summary     results.Summary            `json:"summary"`
	Submissions []results.SubmissionRecord `json:"submissions"`
}

type Service struct {
	store historyStore
}

func NewService(store historyStore) *Service {
	return &Service{store: store}
}

// History is a user's persisted results, newest first.
type History struct {
	UserID      string            `json:"user_id"`
	Attempts    int               `json:"attempts"`
	Passed      int               `json:"passed"`
	BestPercent int               `json:"best_percentage"`
	Results     []results.Summary `json:"results"`
}

func (s *Service) History(ctx context.Context, userID string, limit int) (History, error) {
	items, err := s.store.ListByUser(ctx, userID, limit)
	if err != nil {
		return History{}, err
	}
	h := History{UserID: userID, Attempts: len(items), Results: items}
	for _, it := range items {
		if it.Passed {
			h.Passed++
		}
		if it.Percentage > h.BestPercent {
			h.BestPercent = it.Percentage
		}
	}
	return h, nil
}

// Detail loads a stored result. Results owned by someone else read as missing
// unless the caller is an admin.
func (s *Service) Detail(ctx context.Context, user identity.User, sessionID string) (Detail, error) {
	sum, subs, err := s.store.Get(ctx, strings.TrimSpace(sessionID))
	if err != nil {
		return Detail{}, err
	}
	if sum.UserID != user.ID && user.Role != identity.RoleAdmin {
		return Detail{}, results.ErrResultNotFound
	}
	return Detail{Summary: sum, Submissions: subs}, nil
}

func (s *Service) HistoryWorkbook(ctx context.Context, userID string) ([]byte, error) {
	h, err := s.History(ctx, userID, 200)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	headers := []string{"session_id", "certification", "correct", "total", "points", "max_points", "percentage", "threshold", "passed", "completed_at"}
	writeRow(f, sheet, 1, toAny(headers))
	for i, it := range h.Results {
		writeRow(f, sheet, i+2, []any{
			it.SessionID,
			firstNonEmpty(it.CertificationName, it.CertificationID),
			it.CorrectCount,
			it.TotalQuestions,
			it.TotalPoints,
			it.MaxPoints,
			it.Percentage,
			it.PassThreshold,
			passLabel(it.Passed),
			it.CompletedAt.Format("2006-01-02 15:04:05"),
		})
	}
	_ = f.SetColWidth(sheet, "A", "J", 20)
	return writeFile(f)
}

// TranscriptWorkbook renders one session as a summary sheet plus one row per
// question in session order.
func TranscriptWorkbook(t quiz.Transcript) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	summary := f.GetSheetName(0)
	if err := f.SetSheetName(summary, "Summary"); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	summary = "Summary"

	completed := ""
	if t.CompletedAt != nil {
		completed = t.CompletedAt.Format("2006-01-02 15:04:05")
	}
	rows := [][]any{
		{"session_id", t.SessionID},
		{"certification", firstNonEmpty(t.CertificationName, t.CertificationID)},
		{"user_id", t.UserID},
		{"seed", t.Seed},
		{"status", string(t.Status)},
		{"started_at", t.StartedAt.Format("2006-01-02 15:04:05")},
		{"completed_at", completed},
		{"correct", t.Score.CorrectCount},
		{"total_questions", t.Score.TotalQuestions},
		{"points", t.Score.TotalPoints},
		{"max_points", t.Score.MaxPoints},
		{"percentage", t.Score.Percentage},
		{"pass_threshold", t.Score.Threshold},
		{"result", passLabel(t.Score.Passed)},
	}
	for i, r := range rows {
		writeRow(f, summary, i+1, r)
	}
	_ = f.SetColWidth(summary, "A", "B", 28)

	const questions = "Questions"
	if _, err := f.NewSheet(questions); err != nil {
		return nil, fmt.Errorf("add sheet: %w", err)
	}
	writeRow(f, questions, 1, toAny([]string{"position", "question_id", "prompt", "points", "attempts", "submissions", "correct", "points_awarded", "correct_choices"}))
	for i, it := range t.Items {
		writeRow(f, questions, i+2, []any{
			it.Position,
			it.QuestionID,
			it.Prompt,
			it.Points,
			it.Count,
			strings.Join(it.Submissions, ", "),
			it.Correct,
			it.PointsAwarded,
			strings.Join(it.CorrectChoices, ", "),
		})
	}
	_ = f.SetColWidth(questions, "A", "B", 14)
	_ = f.SetColWidth(questions, "C", "C", 60)
	_ = f.SetColWidth(questions, "D", "I", 16)

	return writeFile(f)
}

func writeRow(f *excelize.File, sheet string, row int, values []any) {
	for col, v := range values {
		cell, _ := excelize.CoordinatesToCellName(col+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

func writeFile(f *excelize.File) ([]byte, error) {
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write excel: %w", err)
	}
	return buf.Bytes(), nil
}

func toAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func passLabel(passed bool) string {
	if passed {
		return "PASS"
	}
	return "FAIL"
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
