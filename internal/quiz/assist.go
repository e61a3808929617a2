package quiz

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// Explainer is the AI backend. Implementations may block; the assistant always
// calls them off the caller's goroutine.
type Explainer interface {
	Explain(ctx context.Context, questionText string, ec ExplainContext) (string, error)
}

// ExplainContext carries what the backend may see about a question. Explanation
// is empty unless the explanation gate is already open.
type ExplainContext struct {
	CertificationName string
	QuestionID        string
	Choices           []string
	Explanation       string
}

type AIStatus string

const (
	AIIdle      AIStatus = "idle"
	AILoading   AIStatus = "loading"
	AIResolved  AIStatus = "resolved"
	AIError     AIStatus = "error"
	AICancelled AIStatus = "cancelled"
)

type AIRequest struct {
	QuestionID string   `json:"question_id,omitempty"`
	Token      uint64   `json:"token"`
	Status     AIStatus `json:"status"`
	Text       string   `json:"text,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// Assistant runs at most one live AI request. Every Request or Cancel advances
// the token, and a completion is applied only while its token is still current.
type Assistant struct {
	explainer Explainer
	timeout   time.Duration

	mu      sync.Mutex
	token   uint64
	current AIRequest

	inflight sync.WaitGroup
}

func NewAssistant(explainer Explainer, timeout time.Duration) *Assistant {
	return &Assistant{
		explainer: explainer,
		timeout:   timeout,
		current:   AIRequest{Status: AIIdle},
	}
}

// Request supersedes whatever is live and starts a new call. It returns the
// token of the new request without waiting for the backend.
func (a *Assistant) Request(ctx context.Context, questionID, questionText string, ec ExplainContext) uint64 {
	a.mu.Lock()
	a.token++
	token := a.token
	a.current = AIRequest{QuestionID: questionID, Token: token, Status: AILoading}
	a.mu.Unlock()

	// The request outlives the caller (usually an HTTP handler), so only values
	// are inherited from ctx.
	callCtx := context.WithoutCancel(ctx)
	cancel := context.CancelFunc(func() {})
	if a.timeout > 0 {
		callCtx, cancel = context.WithTimeout(callCtx, a.timeout)
	}

	a.inflight.Add(1)
	go func() {
		defer a.inflight.Done()
		defer cancel()
		if a.explainer == nil {
			a.complete(token, "", errors.New("no explainer configured"))
			return
		}
		text, err := a.explainer.Explain(callCtx, questionText, ec)
		if err == nil && callCtx.Err() != nil {
			err = callCtx.Err()
		}
		a.complete(token, text, err)
	}()
	return token
}

// Cancel supersedes the live request. An idle assistant stays idle.
func (a *Assistant) Cancel() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.token++
	if a.current.Status == AIIdle {
		return
	}
	a.current = AIRequest{QuestionID: a.current.QuestionID, Token: a.current.Token, Status: AICancelled}
}

// Reset drops all request state, as for a restarted session.
func (a *Assistant) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.token++
	a.current = AIRequest{Status: AIIdle}
}

func (a *Assistant) State() AIRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// StateFor reports the request state as seen from questionID: a request about a
// different question reads as idle.
func (a *Assistant) StateFor(questionID string) AIRequest {
	st := a.State()
	if st.QuestionID != questionID {
		return AIRequest{QuestionID: questionID, Status: AIIdle}
	}
	return st
}

// Wait blocks until every started backend call has returned.
func (a *Assistant) Wait() {
	a.inflight.Wait()
}

func (a *Assistant) complete(token uint64, text string, err error) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if token != a.token || a.current.Status != AILoading {
		return false
	}
	if err != nil {
		log.Printf("ai request failed question=%s token=%d: %v", a.current.QuestionID, token, err)
		a.current.Status = AIError
		a.current.Error = userMessage(err)
		return true
	}
	a.current.Status = AIResolved
	a.current.Text = text
	return true
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "the assistant took too long to answer, please try again"
	default:
		return ErrAIRequestFailed.Error() + ": the assistant is unavailable right now, please try again"
	}
}
