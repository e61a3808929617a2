package quiz

// CanReveal reports whether the canonical explanation for a question may be
// shown. Every caller that shows explanations must go through it.
func CanReveal(attempt *AttemptState, maxAttempts int) bool {
	if attempt == nil || attempt.Count < 1 {
		return false
	}
	return attempt.Correct || attempt.Count >= maxAttempts
}
