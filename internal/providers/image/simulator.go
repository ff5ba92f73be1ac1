package image

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"aistudio/internal/domain"
)

const (
	DefaultMinDelay    = 1000 * time.Millisecond
	DefaultMaxDelay    = 2000 * time.Millisecond
	DefaultFailureRate = 0.2
)

// Simulator stands in for a remote image model. Each attempt waits a random
// latency, then either fails with domain.ErrModelOverloaded or echoes the
// submitted image back as the result.
type Simulator struct {
	minDelay    time.Duration
	maxDelay    time.Duration
	failureRate float64
	now         func() time.Time
	logger      zerolog.Logger

	mu  sync.Mutex
	rnd *rand.Rand
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithDelayRange sets the latency window [min, max).
func WithDelayRange(lo, hi time.Duration) Option {
	return func(s *Simulator) {
		if lo < 0 {
			lo = 0
		}
		if hi < lo {
			hi = lo
		}
		s.minDelay = lo
		s.maxDelay = hi
	}
}

// WithFailureRate sets the probability of an overload rejection, clamped to [0, 1].
func WithFailureRate(rate float64) Option {
	return func(s *Simulator) {
		switch {
		case rate < 0:
			rate = 0
		case rate > 1:
			rate = 1
		}
		s.failureRate = rate
	}
}

// WithRand replaces the random source.
func WithRand(r *rand.Rand) Option {
	return func(s *Simulator) {
		if r != nil {
			s.rnd = r
		}
	}
}

// WithClock overrides the clock used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Simulator) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Simulator) {
		s.logger = logger.With().Str("component", "simulator").Logger()
	}
}

// NewSimulator returns a Simulator with 1-2s latency and a 20% failure rate
// unless overridden.
func NewSimulator(opts ...Option) *Simulator {
	s := &Simulator{
		minDelay:    DefaultMinDelay,
		maxDelay:    DefaultMaxDelay,
		failureRate: DefaultFailureRate,
		now:         time.Now,
		logger:      zerolog.Nop(),
		rnd:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Attempt fulfils the Generator interface. Cancellation of ctx before the
// latency elapses wins over the scheduled outcome and yields
// domain.ErrRequestAborted.
func (s *Simulator) Attempt(ctx context.Context, req domain.GenerationRequest) (*domain.GenerationResponse, error) {
	delay, fail := s.draw()

	if err := ctx.Err(); err != nil {
		return nil, domain.ErrRequestAborted
	}

	timer := time.NewTimer(delay)
	select {
	case <-ctx.Done():
		timer.Stop()
		s.logger.Debug().Dur("delay", delay).Msg("attempt aborted")
		return nil, domain.ErrRequestAborted
	case <-timer.C:
	}

	if fail {
		s.logger.Debug().Dur("delay", delay).Msg("attempt rejected: model overloaded")
		return nil, domain.ErrModelOverloaded
	}

	resp := &domain.GenerationResponse{
		ID:        uuid.NewString(),
		ImageURL:  req.ImageDataURL,
		Prompt:    req.Prompt,
		Style:     req.Style,
		CreatedAt: s.now().UTC(),
	}
	s.logger.Debug().Str("id", resp.ID).Dur("delay", delay).Msg("attempt succeeded")
	return resp, nil
}

func (s *Simulator) draw() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delay := s.minDelay
	if span := s.maxDelay - s.minDelay; span > 0 {
		delay += time.Duration(s.rnd.Int63n(int64(span)))
	}
	fail := s.rnd.Float64() < s.failureRate
	return delay, fail
}

var _ Generator = (*Simulator)(nil)
