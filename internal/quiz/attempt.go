package quiz

import "fmt"

const DefaultMaxAttempts = 3

// AttemptState records every scored submission for one question.
type AttemptState struct {
	QuestionID    string   `json:"question_id"`
	Submissions   []string `json:"submissions"`
	Count         int      `json:"count"`
	Correct       bool     `json:"correct"`
	PointsAwarded int      `json:"points_awarded"`
}

func newAttemptState(questionID string) *AttemptState {
	return &AttemptState{QuestionID: questionID, Submissions: []string{}}
}

func (a *AttemptState) clone() AttemptState {
	out := *a
	out.Submissions = append([]string(nil), a.Submissions...)
	return out
}

type SubmissionResult struct {
	QuestionID        string `json:"question_id"`
	ChoiceID          string `json:"choice_id"`
	Correct           bool   `json:"correct"`
	RemainingAttempts int    `json:"remaining_attempts"`
	Exhausted         bool   `json:"exhausted"`
	PointsAwarded     int    `json:"points_awarded"`
}

// Tracker enforces the per-question attempt policy.
type Tracker struct {
	MaxAttempts int
}

func NewTracker(maxAttempts int) Tracker {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return Tracker{MaxAttempts: maxAttempts}
}

// Submit records a scored submission of choiceID against q.
func (t Tracker) Submit(state *AttemptState, q Question, choiceID string) (SubmissionResult, error) {
	if state.Correct {
		return t.result(state, choiceID, false), ErrAlreadyGraded
	}
	if state.Count >= t.MaxAttempts {
		return t.result(state, choiceID, false), ErrAttemptsExhausted
	}
	c, ok := q.choice(choiceID)
	if !ok {
		return SubmissionResult{}, fmt.Errorf("%w: %q", ErrUnknownChoice, choiceID)
	}

	state.Submissions = append(state.Submissions, choiceID)
	state.Count++
	if c.IsCorrect {
		state.Correct = true
		state.PointsAwarded = q.Points
	}
	return t.result(state, choiceID, c.IsCorrect), nil
}

// Review evaluates choiceID without recording or scoring it. It is how a user
// re-tries a question that is already graded or out of attempts.
func (t Tracker) Review(q Question, choiceID string) (bool, error) {
	c, ok := q.choice(choiceID)
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownChoice, choiceID)
	}
	return c.IsCorrect, nil
}

func (t Tracker) Remaining(state *AttemptState) int {
	if state.Correct {
		return 0
	}
	n := t.MaxAttempts - state.Count
	if n < 0 {
		return 0
	}
	return n
}

func (t Tracker) result(state *AttemptState, choiceID string, correct bool) SubmissionResult {
	return SubmissionResult{
		QuestionID:        state.QuestionID,
		ChoiceID:          choiceID,
		Correct:           correct,
		RemainingAttempts: t.Remaining(state),
		Exhausted:         !state.Correct && state.Count >= t.MaxAttempts,
		PointsAwarded:     state.PointsAwarded,
	}
}
