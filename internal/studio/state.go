package studio

import (
	"time"

	"aistudio/internal/domain"
)

// Phase is the lifecycle position of a studio's current generation.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseSubmitting Phase = "submitting"
	PhaseRetrying   Phase = "retrying"
	PhaseSucceeded  Phase = "succeeded"
	PhaseAborted    Phase = "aborted"
	PhaseFailed     Phase = "failed"
)

// Terminal reports whether p ends a generation.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseSucceeded, PhaseAborted, PhaseFailed:
		return true
	}
	return false
}

// State is an immutable snapshot of a studio.
type State struct {
	Form       domain.FormState           `json:"form"`
	Phase      Phase                      `json:"phase"`
	Loading    bool                       `json:"loading"`
	Error      string                     `json:"error,omitempty"`
	Attempt    int                        `json:"attempt"`
	RetryCount int                        `json:"retryCount"`
	Result     *domain.GenerationResponse `json:"result,omitempty"`
}

// Outcome is what Generate returns once the run settles.
type Outcome struct {
	Phase    Phase
	Response *domain.GenerationResponse
	Err      error
	Attempts int
	// Skipped is set when another generation was already in flight.
	Skipped bool
}

// Config bounds the retry loop.
type Config struct {
	MaxAttempts int
	BackoffBase time.Duration
}

// DefaultConfig returns three attempts with a 500ms backoff base.
func DefaultConfig() Config {
	return Config{MaxAttempts: 3, BackoffBase: 500 * time.Millisecond}
}

// Backoff returns the wait after the given failed attempt: base * 2^(attempt-1).
func (c Config) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return c.BackoffBase << (attempt - 1)
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.MaxAttempts < 1 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.BackoffBase < 0 {
		c.BackoffBase = def.BackoffBase
	}
	return c
}
