// Package studio drives one user's generation lifecycle: form state, the
// bounded retry loop against an image.Generator, cancellation and history.
package studio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"aistudio/internal/abort"
	"aistudio/internal/domain"
	"aistudio/internal/history"
	"aistudio/internal/providers/image"
)

// ErrIncompleteForm is returned by Generate when image, prompt or style is empty.
var ErrIncompleteForm = &domain.GenerationError{Message: "Please provide an image, prompt, and style."}

// Attempt results reported to the Observer.
const (
	ResultSuccess  = "success"
	ResultRejected = "rejected"
	ResultAborted  = "aborted"
)

// Sleeper blocks for d or until ctx is done, returning ctx.Err() in the latter case.
type Sleeper func(ctx context.Context, d time.Duration) error

// Observer receives lifecycle measurements.
type Observer interface {
	ObserveAttempt(result string)
	ObserveBackoff(d time.Duration)
	ObserveOutcome(phase Phase, elapsed time.Duration)
	ObserveHistorySize(n int)
}

type nopObserver struct{}

func (nopObserver) ObserveAttempt(string) {}
func (nopObserver) ObserveBackoff(time.Duration) {}
func (nopObserver) ObserveOutcome(Phase, time.Duration) {}
func (nopObserver) ObserveHistorySize(int) {}

// Option configures a Studio.
type Option func(*Studio)

func WithConfig(cfg Config) Option {
	return func(s *Studio) { s.cfg = cfg.normalized() }
}

func WithSleeper(sleep Sleeper) Option {
	return func(s *Studio) {
		if sleep != nil {
			s.sleep = sleep
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Studio) { s.logger = logger.With().Str("component", "studio").Logger() }
}

func WithObserver(o Observer) Option {
	return func(s *Studio) {
		if o != nil {
			s.observer = o
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Studio) {
		if now != nil {
			s.now = now
		}
	}
}

// Studio is safe for concurrent use. Generate runs on the caller's goroutine;
// Abort may be called from any other.
type Studio struct {
	gen      image.Generator
	history  *history.Cache
	coord    *abort.Coordinator
	cfg      Config
	sleep    Sleeper
	now      func() time.Time
	logger   zerolog.Logger
	observer Observer

	mu             sync.Mutex
	state          State
	inFlight       bool
	abortRequested bool

	notifyMu sync.Mutex
	subs     map[int]func(State)
	nextSub  int
}

// New returns an idle Studio with the default style selected.
func New(gen image.Generator, cache *history.Cache, opts ...Option) *Studio {
	s := &Studio{
		gen:      gen,
		history:  cache,
		coord:    abort.New(),
		cfg:      DefaultConfig(),
		sleep:    sleepContext,
		now:      time.Now,
		logger:   zerolog.Nop(),
		observer: nopObserver{},
		subs:     make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.state = State{
		Form:  domain.FormState{Style: domain.DefaultStyle().ID},
		Phase: PhaseIdle,
	}
	if s.history != nil {
		s.observer.ObserveHistorySize(s.history.Len())
	}
	return s
}

// SetImage replaces the image data URL on the form.
func (s *Studio) SetImage(dataURL string) {
	s.update(func(st *State) { st.Form.ImageDataURL = dataURL })
}

// SetPrompt replaces the prompt text.
func (s *Studio) SetPrompt(prompt string) {
	s.update(func(st *State) { st.Form.Prompt = prompt })
}

// SetStyle selects a style by id; unknown ids are rejected with domain.ErrInvalidStyle.
func (s *Studio) SetStyle(id string) error {
	opt, ok := domain.StyleByID(id)
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrInvalidStyle, id)
	}
	s.update(func(st *State) { st.Form.Style = opt.ID })
	return nil
}

// Snapshot returns the current state.
func (s *Studio) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Busy reports whether a generation is in flight.
func (s *Studio) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// History returns the cached generations, newest first.
func (s *Studio) History() []domain.HistoryEntry {
	if s.history == nil {
		return nil
	}
	return s.history.Entries()
}

// ClearHistory empties the history cache and its persisted copy.
func (s *Studio) ClearHistory(ctx context.Context) {
	if s.history == nil {
		return
	}
	s.history.Clear(ctx)
	s.observer.ObserveHistorySize(0)
}

// Subscribe registers fn to receive every state change. fn runs on the
// goroutine that made the change and must not block.
func (s *Studio) Subscribe(fn func(State)) func() {
	s.notifyMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.notifyMu.Unlock()

	return func() {
		s.notifyMu.Lock()
		delete(s.subs, id)
		s.notifyMu.Unlock()
	}
}

// RestoreFromHistory loads a past generation back onto the form and shows it
// as the current result.
func (s *Studio) RestoreFromHistory(id string) error {
	if s.history == nil {
		return domain.ErrNotFound
	}
	entry, ok := s.history.Find(id)
	if !ok {
		return fmt.Errorf("history entry %q: %w", id, domain.ErrNotFound)
	}
	form := s.history.Restore(entry)
	s.update(func(st *State) {
		st.Form = form
		st.Result = &entry
		st.Error = ""
	})
	return nil
}

// Abort cancels the in-flight generation. It reports false, and does
// nothing, when no generation is running.
func (s *Studio) Abort() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.inFlight {
		return false
	}
	s.abortRequested = true
	s.coord.Abort()
	s.logger.Info().Msg("generation abort requested")
	return true
}

// Generate submits the current form and retries transient rejections with
// exponential backoff until the run succeeds, is aborted or exhausts its
// attempts. A call while another generation is running returns at once with
// Outcome.Skipped set.
func (s *Studio) Generate(ctx context.Context) Outcome {
	form, out, ok := s.claim()
	if !ok {
		return out
	}
	return s.run(ctx, form)
}

// Start behaves like Generate but runs the retry loop on a new goroutine.
// When the form is incomplete or a generation is already running, the
// returned Outcome is final and the channel is nil; otherwise the channel
// receives the Outcome once the run settles.
func (s *Studio) Start(ctx context.Context) (Outcome, <-chan Outcome) {
	form, out, ok := s.claim()
	if !ok {
		return out, nil
	}
	done := make(chan Outcome, 1)
	go func() {
		done <- s.run(ctx, form)
	}()
	return Outcome{Phase: PhaseSubmitting}, done
}

// claim checks the form and marks the studio in flight.
func (s *Studio) claim() (domain.FormState, Outcome, bool) {
	s.mu.Lock()
	form := s.state.Form
	if form.ImageDataURL == "" || form.Prompt == "" || form.Style == "" {
		s.state.Error = ErrIncompleteForm.Message
		phase := s.state.Phase
		s.mu.Unlock()
		s.publish()
		return form, Outcome{Phase: phase, Err: ErrIncompleteForm}, false
	}
	if s.inFlight {
		phase := s.state.Phase
		s.mu.Unlock()
		return form, Outcome{Phase: phase, Skipped: true}, false
	}
	s.inFlight = true
	s.abortRequested = false
	s.state.Phase = PhaseSubmitting
	s.state.Loading = true
	s.state.Error = ""
	s.state.Result = nil
	s.state.Attempt = 0
	s.state.RetryCount = 0
	s.mu.Unlock()
	s.publish()
	return form, Outcome{}, true
}

func (s *Studio) run(ctx context.Context, form domain.FormState) Outcome {
	req := domain.GenerationRequest{
		ImageDataURL: form.ImageDataURL,
		Prompt:       form.Prompt,
		Style:        form.Style,
	}
	started := s.now()
	logger := s.logger.With().Str("style", req.Style).Logger()

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		attemptCtx, h, ok := s.begin(ctx, func(st *State) {
			st.Phase = PhaseSubmitting
			st.Attempt = attempt
		})
		if !ok {
			return s.finish(started, PhaseAborted, nil, domain.ErrRequestAborted, attempts)
		}
		attempts = attempt

		resp, err := s.gen.Attempt(attemptCtx, req)
		s.coord.End(h)

		if err == nil && resp != nil {
			s.observer.ObserveAttempt(ResultSuccess)
			logger.Info().Int("attempt", attempt).Str("id", resp.ID).Msg("generation succeeded")
			return s.succeed(ctx, started, resp, attempts)
		}
		if err == nil {
			err = errors.New("generator returned no response")
		}
		if errors.Is(err, domain.ErrRequestAborted) || s.aborted() {
			s.observer.ObserveAttempt(ResultAborted)
			logger.Info().Int("attempt", attempt).Msg("generation aborted")
			return s.finish(started, PhaseAborted, nil, domain.ErrRequestAborted, attempts)
		}

		s.observer.ObserveAttempt(ResultRejected)
		lastErr = err
		if attempt == s.cfg.MaxAttempts {
			break
		}

		delay := s.cfg.Backoff(attempt)
		logger.Warn().Err(err).Int("attempt", attempt).Dur("backoff", delay).Msg("generation attempt rejected; retrying")
		waitCtx, wh, ok := s.begin(ctx, func(st *State) {
			st.Phase = PhaseRetrying
			st.RetryCount = attempt
		})
		if !ok {
			return s.finish(started, PhaseAborted, nil, domain.ErrRequestAborted, attempts)
		}
		s.observer.ObserveBackoff(delay)
		waitErr := s.sleep(waitCtx, delay)
		s.coord.End(wh)
		if waitErr != nil || s.aborted() {
			logger.Info().Int("attempt", attempt).Msg("generation aborted during backoff")
			return s.finish(started, PhaseAborted, nil, domain.ErrRequestAborted, attempts)
		}
	}

	logger.Error().Err(lastErr).Int("attempts", attempts).Msg("generation failed")
	return s.finish(started, PhaseFailed, nil, lastErr, attempts)
}

// begin applies the transition and opens a fresh abort signal under the same
// lock Abort takes, so an abort requested before this point is observed.
func (s *Studio) begin(ctx context.Context, transition func(*State)) (context.Context, *abort.Handle, bool) {
	s.mu.Lock()
	if s.abortRequested {
		s.mu.Unlock()
		return nil, nil, false
	}
	transition(&s.state)
	stepCtx, h := s.coord.Begin(ctx)
	s.mu.Unlock()
	s.publish()
	return stepCtx, h, true
}

func (s *Studio) aborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.abortRequested
}

func (s *Studio) succeed(ctx context.Context, started time.Time, resp *domain.GenerationResponse, attempts int) Outcome {
	if s.history != nil {
		// The result is kept even if the run's context is cancelled right after.
		s.history.Record(context.WithoutCancel(ctx), *resp)
		s.observer.ObserveHistorySize(s.history.Len())
	}
	return s.finish(started, PhaseSucceeded, resp, nil, attempts)
}

func (s *Studio) finish(started time.Time, phase Phase, resp *domain.GenerationResponse, err error, attempts int) Outcome {
	s.mu.Lock()
	s.inFlight = false
	s.abortRequested = false
	s.state.Phase = phase
	s.state.Loading = false
	s.state.Result = resp
	if phase == PhaseSucceeded {
		s.state.Error = ""
		s.state.RetryCount = 0
	} else {
		s.state.Error = errorMessage(err)
	}
	s.mu.Unlock()
	s.publish()

	s.observer.ObserveOutcome(phase, s.now().Sub(started))
	return Outcome{Phase: phase, Response: resp, Err: err, Attempts: attempts}
}

func (s *Studio) update(mutate func(*State)) {
	s.mu.Lock()
	mutate(&s.state)
	s.mu.Unlock()
	s.publish()
}

// publish delivers the latest snapshot to every subscriber. Deliveries are
// serialized, so subscribers observe states in order.
func (s *Studio) publish() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if len(s.subs) == 0 {
		return
	}
	st := s.Snapshot()
	for _, fn := range s.subs {
		fn(st)
	}
}

func (s *Studio) snapshotLocked() State {
	st := s.state
	if st.Result != nil {
		r := *st.Result
		st.Result = &r
	}
	return st
}

func errorMessage(err error) string {
	if err == nil {
		return "Failed to generate image"
	}
	var genErr *domain.GenerationError
	if errors.As(err, &genErr) {
		return genErr.Message
	}
	return err.Error()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
