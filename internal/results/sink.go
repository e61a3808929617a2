package results

import (
	"context"
	"errors"
	"time"

	"certprep/internal/quiz"
)

// Sink receives completed session transcripts.
type Sink interface {
	SaveResult(ctx context.Context, t quiz.Transcript) error
}

// Summary is one persisted session outcome.
type Summary struct {
	SessionID         string    `json:"session_id"`
	CertificationID   string    `json:"certification_id"`
	CertificationName string    `json:"certification_name"`
	UserID            string    `json:"user_id"`
	Seed              string    `json:"seed"`
	CorrectCount      int       `json:"correct_count"`
	TotalQuestions    int       `json:"total_questions"`
	TotalPoints       int       `json:"total_points"`
	MaxPoints         int       `json:"max_points"`
	Percentage        int       `json:"percentage"`
	PassThreshold     int       `json:"pass_threshold"`
	Passed            bool      `json:"passed"`
	StartedAt         time.Time `json:"started_at"`
	CompletedAt       time.Time `json:"completed_at"`
}

func summaryOf(t quiz.Transcript) Summary {
	s := Summary{
		SessionID:         t.SessionID,
		CertificationID:   t.CertificationID,
		CertificationName: t.CertificationName,
		UserID:            t.UserID,
		Seed:              t.Seed,
		CorrectCount:      t.Score.CorrectCount,
		TotalQuestions:    t.Score.TotalQuestions,
		TotalPoints:       t.Score.TotalPoints,
		MaxPoints:         t.Score.MaxPoints,
		Percentage:        t.Score.Percentage,
		PassThreshold:     t.Score.Threshold,
		Passed:            t.Score.Passed,
		StartedAt:         t.StartedAt,
	}
	if t.CompletedAt != nil {
		s.CompletedAt = *t.CompletedAt
	}
	return s
}

func validate(t quiz.Transcript) error {
	if t.Status != quiz.StatusCompleted || t.CompletedAt == nil {
		return quiz.ErrSessionNotCompleted
	}
	if t.SessionID == "" || t.UserID == "" {
		return errors.New("transcript is missing session or user id")
	}
	return nil
}

// Fanout delivers a transcript to every sink and joins their errors. Later
// sinks still run when an earlier one fails.
type Fanout []Sink

func (f Fanout) SaveResult(ctx context.Context, t quiz.Transcript) error {
	var errs []error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.SaveResult(ctx, t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
