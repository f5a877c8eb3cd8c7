package instruct

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/danielpatrickdp/facilitator/go-controller/internal/state"
	"github.com/danielpatrickdp/facilitator/go-controller/internal/style"
)

// #region synchronizer
// Synchronizer pushes rendered instructions to the backend whenever the style
// changes. Each Schedule runs on its own goroutine; pushes are serialized by
// pushMu so an older generation can never land after a newer one.
type Synchronizer struct {
	cfg       Config
	backend   Backend
	gens      Generations
	onOutcome OutcomeFunc
	log       zerolog.Logger

	pushMu sync.Mutex

	mu      sync.Mutex
	closed  bool
	closing chan struct{}
	wg      sync.WaitGroup
}

// NewSynchronizer wires a synchronizer. onOutcome may be nil.
func NewSynchronizer(cfg Config, backend Backend, gens Generations, onOutcome OutcomeFunc, log zerolog.Logger) *Synchronizer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultRetryBackoff
	}
	if cfg.Debounce < 0 {
		cfg.Debounce = 0
	}
	return &Synchronizer{
		cfg:       cfg,
		backend:   backend,
		gens:      gens,
		onOutcome: onOutcome,
		log:       log,
		closing:   make(chan struct{}),
	}
}

// #endregion synchronizer

// #region schedule
// Schedule starts a refresh for gen and returns immediately. pc is copied.
func (s *Synchronizer) Schedule(gen uint64, st style.Style, pc state.PromptContext) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.report(Outcome{Generation: gen, Style: st, Phase: Discarded, Reason: "synchronizer closed"})
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	pc = pc.Clone()
	s.log.Debug().Uint64("generation", gen).Str("style", string(st)).Str("phase", Scheduled.String()).Msg("refresh")

	go func() {
		defer s.wg.Done()
		s.report(s.run(gen, st, pc))
	}()
}

func (s *Synchronizer) run(gen uint64, st style.Style, pc state.PromptContext) Outcome {
	out := Outcome{Generation: gen, Style: st}

	if s.cfg.Debounce > 0 {
		timer := time.NewTimer(s.cfg.Debounce)
		select {
		case <-timer.C:
		case <-s.closing:
			timer.Stop()
			out.Phase = Discarded
			out.Reason = "synchronizer closed"
			return out
		}
	}

	if !s.gens.IsCurrent(gen) {
		out.Phase = Discarded
		out.Reason = "superseded before push"
		return out
	}

	text, err := Render(st, pc)
	if err != nil {
		out.Phase = Failed
		out.Err = fmt.Errorf("%w: %w", ErrRefreshBackend, err)
		out.Reason = out.Err.Error()
		return out
	}

	s.pushMu.Lock()
	defer s.pushMu.Unlock()

	s.log.Debug().Uint64("generation", gen).Str("style", string(st)).Str("phase", InFlight.String()).Msg("refresh")

	attempts, err := s.push(gen, st, text)
	out.Attempts = attempts
	switch {
	case errors.Is(err, errStale):
		out.Phase = Discarded
		out.Reason = "superseded before push"
		if attempts > 0 {
			out.Reason = "superseded before retry"
		}
	case err != nil:
		out.Phase = Failed
		out.Err = fmt.Errorf("%w: generation %d: %w", ErrRefreshBackend, gen, err)
		out.Reason = out.Err.Error()
	case s.gens.CommitInstructions(gen, st):
		out.Phase = Applied
	default:
		out.Phase = Discarded
		out.Reason = "superseded during push"
	}
	return out
}

// push calls the backend, retrying once. The generation is re-checked before
// every attempt.
func (s *Synchronizer) push(gen uint64, st style.Style, text string) (int, error) {
	attempts := 0
	op := func() error {
		if !s.gens.IsCurrent(gen) {
			return backoff.Permanent(errStale)
		}
		attempts++
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
		defer cancel()
		return s.backend.UpdateInstructions(ctx, gen, st, text)
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.cfg.RetryBackoff
	eb.MaxElapsedTime = 0

	notify := func(err error, wait time.Duration) {
		s.log.Warn().Err(err).Uint64("generation", gen).Dur("retry_in", wait).Msg("instruction push failed, retrying")
	}
	err := backoff.RetryNotify(op, backoff.WithMaxRetries(eb, 1), notify)
	return attempts, err
}

func (s *Synchronizer) report(out Outcome) {
	if out.At.IsZero() {
		out.At = time.Now().UTC()
	}
	ev := s.log.Info()
	if out.Phase == Failed {
		ev = s.log.Error().Err(out.Err)
	}
	ev.Uint64("generation", out.Generation).
		Str("style", string(out.Style)).
		Str("phase", out.Phase.String()).
		Int("attempts", out.Attempts).
		Str("reason", out.Reason).
		Msg("refresh outcome")
	if s.onOutcome != nil {
		s.onOutcome(out)
	}
}

// #endregion schedule

// #region close
// Close abandons refreshes still waiting out their debounce and waits for
// in-flight pushes, which are bounded by Config.Timeout.
func (s *Synchronizer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.closing)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

// #endregion close
