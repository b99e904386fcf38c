// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package player

// DefaultMaxRetries bounds network-fault resumes per session.
const DefaultMaxRetries = 3

// RetryBudget counts network-fault resumes of one session. It is never
// reset within a session; a new session starts with a fresh budget.
type RetryBudget struct {
	max  int
	used int
}

// NewRetryBudget returns an empty budget allowing max resumes.
func NewRetryBudget(max int) RetryBudget {
	if max < 0 {
		max = 0
	}
	return RetryBudget{max: max}
}

// Consume takes one retry. It reports false, leaving the budget unchanged,
// once max retries have been used.
func (b *RetryBudget) Consume() bool {
	if b.used >= b.max {
		return false
	}
	b.used++
	return true
}

func (b RetryBudget) Used() int       { return b.used }
func (b RetryBudget) Max() int        { return b.max }
func (b RetryBudget) Exhausted() bool { return b.used >= b.max }
