package instruct

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/danielpatrickdp/facilitator/go-controller/internal/state"
	"github.com/danielpatrickdp/facilitator/go-controller/internal/style"
)

var now = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

func newSession(t *testing.T) *state.Session {
	t.Helper()
	s, err := state.New(state.Options{
		ID:      "sess-1",
		Context: state.PromptContext{state.KeyCurrentTopic: "hiring plan"},
	})
	require.NoError(t, err)
	return s
}

func collector(buf int) (OutcomeFunc, <-chan Outcome) {
	ch := make(chan Outcome, buf)
	return func(o Outcome) { ch <- o }, ch
}

func collect(t *testing.T, ch <-chan Outcome, n int) map[uint64]Outcome {
	t.Helper()
	got := make(map[uint64]Outcome, n)
	for i := 0; i < n; i++ {
		select {
		case o := <-ch:
			got[o.Generation] = o
		case <-time.After(3 * time.Second):
			t.Fatalf("timed out after %d of %d outcomes", i, n)
		}
	}
	return got
}

func apply(t *testing.T, sess *state.Session, st style.Style) state.StyleChange {
	t.Helper()
	ch, err := sess.ApplyStyle(st, now)
	require.NoError(t, err)
	require.True(t, ch.Changed)
	return ch
}

func fastConfig() Config {
	return Config{Debounce: 0, Timeout: time.Second, RetryBackoff: time.Millisecond}
}

func TestSynchronizer_InitialGenerationApplies(t *testing.T) {
	defer goleak.VerifyNone(t)

	sess := newSession(t)
	var pushed atomic.Int32
	backend := BackendFunc(func(_ context.Context, gen uint64, st style.Style, text string) error {
		pushed.Add(1)
		assert.Equal(t, uint64(0), gen)
		assert.Equal(t, style.Moderate, st)
		assert.Contains(t, text, "hiring plan")
		return nil
	})
	onOutcome, outcomes := collector(4)
	s := NewSynchronizer(fastConfig(), backend, sess, onOutcome, zerolog.Nop())
	defer s.Close()

	s.Schedule(0, style.Moderate, sess.PromptContext())
	got := collect(t, outcomes, 1)

	require.Equal(t, Applied, got[0].Phase)
	assert.Equal(t, 1, got[0].Attempts)
	assert.Equal(t, int32(1), pushed.Load())

	gen, st := sess.AppliedInstructions()
	assert.Equal(t, uint64(0), gen)
	assert.Equal(t, style.Moderate, st)
}

func TestSynchronizer_InFlightSupersededIsDiscarded(t *testing.T) {
	defer goleak.VerifyNone(t)

	sess := newSession(t)
	release := make(chan struct{})
	started := make(chan uint64, 4)
	backend := BackendFunc(func(_ context.Context, gen uint64, st style.Style, _ string) error {
		started <- gen
		if st == style.Gentle {
			<-release
		}
		return nil
	})
	onOutcome, outcomes := collector(4)
	s := NewSynchronizer(fastConfig(), backend, sess, onOutcome, zerolog.Nop())
	defer s.Close()

	gentle := apply(t, sess, style.Gentle)
	s.Schedule(gentle.Generation, gentle.Current, gentle.Context)

	select {
	case gen := <-started:
		require.Equal(t, gentle.Generation, gen)
	case <-time.After(2 * time.Second):
		t.Fatal("gentle push never started")
	}

	aggressive := apply(t, sess, style.Aggressive)
	s.Schedule(aggressive.Generation, aggressive.Current, aggressive.Context)
	close(release)

	got := collect(t, outcomes, 2)
	assert.Equal(t, Discarded, got[gentle.Generation].Phase)
	assert.Equal(t, "superseded during push", got[gentle.Generation].Reason)
	assert.Equal(t, Applied, got[aggressive.Generation].Phase)

	gen, st := sess.AppliedInstructions()
	assert.Equal(t, aggressive.Generation, gen)
	assert.Equal(t, style.Aggressive, st)
	assert.Equal(t, sess.Style(), st)
}

func TestSynchronizer_BurstAppliesOnlyLast(t *testing.T) {
	defer goleak.VerifyNone(t)

	sess := newSession(t)
	var mu sync.Mutex
	var pushedStyles []style.Style
	backend := BackendFunc(func(_ context.Context, _ uint64, st style.Style, _ string) error {
		mu.Lock()
		pushedStyles = append(pushedStyles, st)
		mu.Unlock()
		return nil
	})
	onOutcome, outcomes := collector(8)
	cfg := fastConfig()
	cfg.Debounce = 150 * time.Millisecond
	s := NewSynchronizer(cfg, backend, sess, onOutcome, zerolog.Nop())
	defer s.Close()

	for _, st := range []style.Style{style.Gentle, style.Moderate, style.Aggressive} {
		ch, err := sess.ApplyStyle(st, now)
		require.NoError(t, err)
		s.Schedule(ch.Generation, ch.Current, ch.Context)
		time.Sleep(20 * time.Millisecond)
	}

	got := collect(t, outcomes, 3)
	var applied, discarded int
	for _, o := range got {
		switch o.Phase {
		case Applied:
			applied++
			assert.Equal(t, style.Aggressive, o.Style)
		case Discarded:
			discarded++
		}
	}
	assert.Equal(t, 1, applied)
	assert.Equal(t, 2, discarded)

	mu.Lock()
	assert.Equal(t, []style.Style{style.Aggressive}, pushedStyles)
	mu.Unlock()

	_, st := sess.AppliedInstructions()
	assert.Equal(t, style.Aggressive, st)
}

func TestSynchronizer_RetriesOnce(t *testing.T) {
	defer goleak.VerifyNone(t)

	sess := newSession(t)
	var calls atomic.Int32
	backend := BackendFunc(func(context.Context, uint64, style.Style, string) error {
		if calls.Add(1) == 1 {
			return errors.New("connection reset")
		}
		return nil
	})
	onOutcome, outcomes := collector(4)
	s := NewSynchronizer(fastConfig(), backend, sess, onOutcome, zerolog.Nop())
	defer s.Close()

	ch := apply(t, sess, style.Gentle)
	s.Schedule(ch.Generation, ch.Current, ch.Context)

	got := collect(t, outcomes, 1)
	assert.Equal(t, Applied, got[ch.Generation].Phase)
	assert.Equal(t, 2, got[ch.Generation].Attempts)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSynchronizer_PersistentFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	sess := newSession(t)
	boom := errors.New("backend down")
	var calls atomic.Int32
	backend := BackendFunc(func(context.Context, uint64, style.Style, string) error {
		calls.Add(1)
		return boom
	})
	onOutcome, outcomes := collector(4)
	s := NewSynchronizer(fastConfig(), backend, sess, onOutcome, zerolog.Nop())
	defer s.Close()

	ch := apply(t, sess, style.Aggressive)
	s.Schedule(ch.Generation, ch.Current, ch.Context)

	o := collect(t, outcomes, 1)[ch.Generation]
	assert.Equal(t, Failed, o.Phase)
	assert.Equal(t, 2, o.Attempts)
	assert.True(t, errors.Is(o.Err, ErrRefreshBackend))
	assert.True(t, errors.Is(o.Err, boom))
	assert.Equal(t, int32(2), calls.Load())

	// the session keeps the new style; only the applied bookkeeping lags
	assert.Equal(t, style.Aggressive, sess.Style())
	_, applied := sess.AppliedInstructions()
	assert.NotEqual(t, style.Aggressive, applied)
}

func TestSynchronizer_SupersededBeforeRetry(t *testing.T) {
	defer goleak.VerifyNone(t)

	sess := newSession(t)
	var calls atomic.Int32
	backend := BackendFunc(func(_ context.Context, _ uint64, st style.Style, _ string) error {
		if calls.Add(1) == 1 {
			// a newer change lands while the first attempt is failing
			_, err := sess.ApplyStyle(style.Moderate, now)
			assert.NoError(t, err)
			return errors.New("timeout")
		}
		return nil
	})
	onOutcome, outcomes := collector(4)
	s := NewSynchronizer(fastConfig(), backend, sess, onOutcome, zerolog.Nop())
	defer s.Close()

	ch := apply(t, sess, style.Gentle)
	s.Schedule(ch.Generation, ch.Current, ch.Context)

	o := collect(t, outcomes, 1)[ch.Generation]
	assert.Equal(t, Discarded, o.Phase)
	assert.Equal(t, 1, o.Attempts)
	assert.Equal(t, "superseded before retry", o.Reason)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSynchronizer_TimeoutBoundsEachAttempt(t *testing.T) {
	defer goleak.VerifyNone(t)

	sess := newSession(t)
	backend := BackendFunc(func(ctx context.Context, _ uint64, _ style.Style, _ string) error {
		<-ctx.Done()
		return ctx.Err()
	})
	onOutcome, outcomes := collector(4)
	cfg := fastConfig()
	cfg.Timeout = 20 * time.Millisecond
	s := NewSynchronizer(cfg, backend, sess, onOutcome, zerolog.Nop())
	defer s.Close()

	ch := apply(t, sess, style.Gentle)
	s.Schedule(ch.Generation, ch.Current, ch.Context)

	o := collect(t, outcomes, 1)[ch.Generation]
	assert.Equal(t, Failed, o.Phase)
	assert.True(t, errors.Is(o.Err, context.DeadlineExceeded))
}

func TestSynchronizer_CloseAbandonsDebounce(t *testing.T) {
	defer goleak.VerifyNone(t)

	sess := newSession(t)
	var calls atomic.Int32
	backend := BackendFunc(func(context.Context, uint64, style.Style, string) error {
		calls.Add(1)
		return nil
	})
	onOutcome, outcomes := collector(4)
	cfg := fastConfig()
	cfg.Debounce = time.Hour
	s := NewSynchronizer(cfg, backend, sess, onOutcome, zerolog.Nop())

	ch := apply(t, sess, style.Gentle)
	s.Schedule(ch.Generation, ch.Current, ch.Context)

	done := make(chan struct{})
	go func() {
		_ = s.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked on a pending debounce")
	}

	o := collect(t, outcomes, 1)[ch.Generation]
	assert.Equal(t, Discarded, o.Phase)
	assert.Equal(t, "synchronizer closed", o.Reason)
	assert.Equal(t, int32(0), calls.Load())

	// scheduling after close reports immediately and starts nothing
	s.Schedule(ch.Generation, ch.Current, ch.Context)
	assert.Equal(t, Discarded, collect(t, outcomes, 1)[ch.Generation].Phase)
	require.NoError(t, s.Close())
}

func TestSynchronizer_CloseWaitsForInFlight(t *testing.T) {
	defer goleak.VerifyNone(t)

	sess := newSession(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	backend := BackendFunc(func(context.Context, uint64, style.Style, string) error {
		close(entered)
		<-release
		return nil
	})
	onOutcome, outcomes := collector(4)
	s := NewSynchronizer(fastConfig(), backend, sess, onOutcome, zerolog.Nop())

	ch := apply(t, sess, style.Gentle)
	s.Schedule(ch.Generation, ch.Current, ch.Context)
	<-entered

	closed := make(chan struct{})
	go func() {
		_ = s.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while a push was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-closed
	assert.Equal(t, Applied, collect(t, outcomes, 1)[ch.Generation].Phase)
}

func TestPhase_String(t *testing.T) {
	assert.Equal(t, "scheduled", Scheduled.String())
	assert.Equal(t, "in_flight", InFlight.String())
	assert.Equal(t, "applied", Applied.String())
	assert.Equal(t, "discarded", Discarded.String())
	assert.Equal(t, "failed", Failed.String())
	assert.Equal(t, "unknown", Phase(42).String())
	assert.True(t, Applied.Terminal())
	assert.False(t, InFlight.Terminal())
}
