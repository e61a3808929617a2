package quiz

import "errors"

var (
	ErrAttemptsExhausted   = errors.New("attempts exhausted")
	ErrAlreadyGraded       = errors.New("question already graded")
	ErrOutOfRange          = errors.New("question index out of range")
	ErrSessionCompleted    = errors.New("session completed")
	ErrSessionNotCompleted = errors.New("session not completed")
	ErrContentLoadFailed   = errors.New("content load failed")
	ErrAIRequestFailed     = errors.New("ai request failed")
	ErrUnknownChoice       = errors.New("unknown choice")
	ErrQuestionNotFound    = errors.New("question not found")
	ErrExplanationLocked   = errors.New("explanation not available yet")
)
