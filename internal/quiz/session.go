package quiz

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Policy holds the externally supplied limits for a session.
type Policy struct {
	MaxAttempts   int
	PassThreshold int
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.PassThreshold <= 0 || p.PassThreshold > 100 {
		p.PassThreshold = DefaultPassThreshold
	}
	return p
}

// Session is one user's run through a certification. Index == len(Questions)
// means the run is complete.
type Session struct {
	ID              string
	CertificationID string
	Seed            string
	Questions       []Question
	Index           int
	Status          Status
	Attempts        map[string]*AttemptState
	StartedAt       time.Time
	CompletedAt     *time.Time
}

func newSession(id, certificationID, seed string, raw []Question) *Session {
	ordered := Order(raw, seed)
	attempts := make(map[string]*AttemptState, len(ordered))
	for i, q := range ordered {
		q = cloneQuestion(q)
		q.Choices = Order(q.Choices, ChoiceSeed(seed, q.ID))
		ordered[i] = q
		attempts[q.ID] = newAttemptState(q.ID)
	}
	return &Session{
		ID:              id,
		CertificationID: certificationID,
		Seed:            seed,
		Questions:       ordered,
		Status:          StatusActive,
		Attempts:        attempts,
		StartedAt:       time.Now(),
	}
}

type ControllerConfig struct {
	SessionID         string
	CertificationID   string
	CertificationName string
	UserID            string
	Seed              string
	Questions         []Question
	Policy            Policy
	Explainer         Explainer
	AITimeout         time.Duration
}

// Controller is the only writer of its session. A single mutex makes each
// submission and its rescoring one step; AI backend calls never hold it.
type Controller struct {
	mu        sync.Mutex
	session   *Session
	raw       []Question
	certName  string
	userID    string
	policy    Policy
	tracker   Tracker
	result    Result
	assistant *Assistant
}

func NewController(cfg ControllerConfig) (*Controller, error) {
	if len(cfg.Questions) == 0 {
		return nil, fmt.Errorf("%w: certification %q has no questions", ErrContentLoadFailed, cfg.CertificationID)
	}
	seen := make(map[string]struct{}, len(cfg.Questions))
	for _, q := range cfg.Questions {
		if _, dup := seen[q.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate question id %q", ErrContentLoadFailed, q.ID)
		}
		seen[q.ID] = struct{}{}
	}

	policy := cfg.Policy.normalized()
	raw := make([]Question, 0, len(cfg.Questions))
	for _, q := range cfg.Questions {
		raw = append(raw, cloneQuestion(q))
	}
	c := &Controller{
		raw:       raw,
		certName:  cfg.CertificationName,
		userID:    cfg.UserID,
		policy:    policy,
		tracker:   NewTracker(policy.MaxAttempts),
		assistant: NewAssistant(cfg.Explainer, cfg.AITimeout),
	}
	c.session = newSession(cfg.SessionID, cfg.CertificationID, cfg.Seed, raw)
	c.result = Score(c.session.Questions, c.session.Attempts)
	return c, nil
}

type AnswerOutcome struct {
	SubmissionResult
	CanReveal bool   `json:"can_reveal"`
	Score     Result `json:"score"`
}

// Answer submits choiceID for the current question and rescores the session.
func (c *Controller) Answer(choiceID string) (AnswerOutcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.session
	if s.Status == StatusCompleted {
		return AnswerOutcome{}, ErrSessionCompleted
	}
	q := s.Questions[s.Index]
	state := s.Attempts[q.ID]
	res, err := c.tracker.Submit(state, q, choiceID)
	if err != nil {
		return AnswerOutcome{SubmissionResult: res, CanReveal: CanReveal(state, c.policy.MaxAttempts), Score: c.result}, err
	}
	c.result = Score(s.Questions, s.Attempts)
	return AnswerOutcome{
		SubmissionResult: res,
		CanReveal:        CanReveal(state, c.policy.MaxAttempts),
		Score:            c.result,
	}, nil
}

// Review checks choiceID against the current question without scoring it.
func (c *Controller) Review(choiceID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.session
	if s.Status == StatusCompleted {
		return false, ErrSessionCompleted
	}
	return c.tracker.Review(s.Questions[s.Index], choiceID)
}

// Next advances to the following question. Leaving the last question completes
// the session and freezes the index at len(Questions).
func (c *Controller) Next() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.session
	if s.Status == StatusCompleted {
		return ErrSessionCompleted
	}
	if s.Index < 0 || s.Index >= len(s.Questions) {
		return ErrOutOfRange
	}
	c.assistant.Cancel()
	s.Index++
	if s.Index == len(s.Questions) {
		now := time.Now()
		s.Status = StatusCompleted
		s.CompletedAt = &now
	}
	return nil
}

// Goto jumps to a question while the session is active.
func (c *Controller) Goto(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.session
	if s.Status == StatusCompleted {
		return ErrSessionCompleted
	}
	if index < 0 || index >= len(s.Questions) {
		return ErrOutOfRange
	}
	if index != s.Index {
		c.assistant.Cancel()
	}
	s.Index = index
	return nil
}

// Restart replaces the session with a fresh one. An empty seed reuses the
// current seed, so the order is the same as before.
func (c *Controller) Restart(seed string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.session
	if seed == "" {
		seed = old.Seed
	}
	c.assistant.Reset()
	c.session = newSession(old.ID, old.CertificationID, seed, c.raw)
	c.result = Score(c.session.Questions, c.session.Attempts)
}

func (c *Controller) Score() Classification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Classify(c.result, c.policy.PassThreshold)
}

// Explanation returns a question's canonical explanation once the gate allows it.
func (c *Controller) Explanation(questionID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	q, ok := c.findQuestion(questionID)
	if !ok {
		return "", ErrQuestionNotFound
	}
	if !CanReveal(c.session.Attempts[q.ID], c.policy.MaxAttempts) {
		return "", ErrExplanationLocked
	}
	return q.Explanation, nil
}

// AskAI starts an assistance request for questionID, or for the current
// question when questionID is empty. It returns immediately.
func (c *Controller) AskAI(ctx context.Context, questionID string) (AIRequest, error) {
	c.mu.Lock()
	s := c.session
	if questionID == "" {
		if s.Status == StatusCompleted {
			c.mu.Unlock()
			return AIRequest{}, ErrOutOfRange
		}
		questionID = s.Questions[s.Index].ID
	}
	q, ok := c.findQuestion(questionID)
	if !ok {
		c.mu.Unlock()
		return AIRequest{}, ErrQuestionNotFound
	}
	ec := ExplainContext{
		CertificationName: c.certName,
		QuestionID:        q.ID,
		Choices:           make([]string, 0, len(q.Choices)),
	}
	for _, ch := range q.Choices {
		ec.Choices = append(ec.Choices, ch.Text)
	}
	if CanReveal(s.Attempts[q.ID], c.policy.MaxAttempts) {
		ec.Explanation = q.Explanation
	}
	// Request only starts the call, so issuing it under the lock keeps a
	// concurrent Next or Restart from being overtaken by this request.
	c.assistant.Request(ctx, q.ID, q.Prompt, ec)
	c.mu.Unlock()

	return c.assistant.State(), nil
}

func (c *Controller) AIState() AIRequest {
	return c.assistant.State()
}

// CancelAI abandons the live AI request. A late completion is discarded.
func (c *Controller) CancelAI() AIRequest {
	c.assistant.Cancel()
	return c.assistant.State()
}

// AIStateFor reports assistance state as seen from one question.
func (c *Controller) AIStateFor(questionID string) AIRequest {
	return c.assistant.StateFor(questionID)
}

// Close waits for outstanding AI calls to settle.
func (c *Controller) Close() {
	c.assistant.Cancel()
	c.assistant.Wait()
}

func (c *Controller) UserID() string {
	return c.userID
}

func (c *Controller) findQuestion(id string) (Question, bool) {
	for _, q := range c.session.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}
