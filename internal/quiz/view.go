package quiz

import "time"

type AttemptView struct {
	AttemptState
	RemainingAttempts int  `json:"remaining_attempts"`
	CanReveal         bool `json:"can_reveal"`
}

type SessionView struct {
	ID              string         `json:"id"`
	CertificationID string         `json:"certification_id"`
	Seed            string         `json:"seed"`
	Status          Status         `json:"status"`
	Index           int            `json:"index"`
	Total           int            `json:"total"`
	MaxAttempts     int            `json:"max_attempts"`
	Current         *QuestionView  `json:"current,omitempty"`
	Attempt         *AttemptView   `json:"attempt,omitempty"`
	Score           Classification `json:"score"`
	AI              AIRequest      `json:"ai"`
}

// Snapshot is a read-only copy of the session for the presentation layer.
func (c *Controller) Snapshot() SessionView {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.session
	v := SessionView{
		ID:              s.ID,
		CertificationID: s.CertificationID,
		Seed:            s.Seed,
		Status:          s.Status,
		Index:           s.Index,
		Total:           len(s.Questions),
		MaxAttempts:     c.policy.MaxAttempts,
		Score:           Classify(c.result, c.policy.PassThreshold),
		AI:              AIRequest{Status: AIIdle},
	}
	if s.Status == StatusActive && s.Index < len(s.Questions) {
		q := s.Questions[s.Index]
		state := s.Attempts[q.ID]
		revealed := CanReveal(state, c.policy.MaxAttempts)
		qv := viewQuestion(q, revealed)
		v.Current = &qv
		v.Attempt = &AttemptView{
			AttemptState:      state.clone(),
			RemainingAttempts: c.tracker.Remaining(state),
			CanReveal:         revealed,
		}
		v.AI = c.assistant.StateFor(q.ID)
	}
	return v
}

// QuestionAt returns the presentation view of the question at position index.
func (c *Controller) QuestionAt(index int) (QuestionView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.session
	if index < 0 || index >= len(s.Questions) {
		return QuestionView{}, ErrOutOfRange
	}
	q := s.Questions[index]
	return viewQuestion(q, CanReveal(s.Attempts[q.ID], c.policy.MaxAttempts)), nil
}

type TranscriptItem struct {
	Position       int      `json:"position"`
	QuestionID     string   `json:"question_id"`
	Prompt         string   `json:"prompt"`
	Points         int      `json:"points"`
	Submissions    []string `json:"submissions"`
	Count          int      `json:"count"`
	Correct        bool     `json:"correct"`
	PointsAwarded  int      `json:"points_awarded"`
	CorrectChoices []string `json:"correct_choices,omitempty"`
}

// Transcript is the per-question record of a session handed to persistence.
type Transcript struct {
	SessionID         string           `json:"session_id"`
	CertificationID   string           `json:"certification_id"`
	CertificationName string           `json:"certification_name"`
	UserID            string           `json:"user_id"`
	Seed              string           `json:"seed"`
	Status            Status           `json:"status"`
	StartedAt         time.Time        `json:"started_at"`
	CompletedAt       *time.Time       `json:"completed_at,omitempty"`
	Score             Classification   `json:"score"`
	Items             []TranscriptItem `json:"items"`
}

func (c *Controller) Transcript() Transcript {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcriptLocked()
}

// Finished returns the transcript of a completed session.
func (c *Controller) Finished() (Transcript, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.Status != StatusCompleted {
		return Transcript{}, ErrSessionNotCompleted
	}
	return c.transcriptLocked(), nil
}

func (c *Controller) transcriptLocked() Transcript {
	s := c.session
	t := Transcript{
		SessionID:         s.ID,
		CertificationID:   s.CertificationID,
		CertificationName: c.certName,
		UserID:            c.userID,
		Seed:              s.Seed,
		Status:            s.Status,
		StartedAt:         s.StartedAt,
		CompletedAt:       s.CompletedAt,
		Score:             Classify(c.result, c.policy.PassThreshold),
		Items:             make([]TranscriptItem, 0, len(s.Questions)),
	}
	for i, q := range s.Questions {
		state := s.Attempts[q.ID]
		item := TranscriptItem{
			Position:      i + 1,
			QuestionID:    q.ID,
			Prompt:        q.Prompt,
			Points:        q.Points,
			Submissions:   append([]string(nil), state.Submissions...),
			Count:         state.Count,
			Correct:       state.Correct,
			PointsAwarded: state.PointsAwarded,
		}
		if CanReveal(state, c.policy.MaxAttempts) {
			item.CorrectChoices = q.CorrectChoiceIDs()
		}
		t.Items = append(t.Items, item)
	}
	return t
}
