package instruct

import (
	"context"
	"errors"
	"time"

	"github.com/danielpatrickdp/facilitator/go-controller/internal/style"
)

// ErrRefreshBackend wraps a push that still failed after its retry.
var ErrRefreshBackend = errors.New("instruction refresh failed")

// errStale stops a push whose generation has been superseded.
var errStale = errors.New("generation superseded")

// #region backend
// Backend receives rendered instructions. Implementations must honour ctx.
type Backend interface {
	UpdateInstructions(ctx context.Context, gen uint64, st style.Style, instructions string) error
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, gen uint64, st style.Style, instructions string) error

// UpdateInstructions calls f.
func (f BackendFunc) UpdateInstructions(ctx context.Context, gen uint64, st style.Style, instructions string) error {
	return f(ctx, gen, st, instructions)
}

// Generations is the slice of session state a refresh consults. *state.Session
// satisfies it.
type Generations interface {
	IsCurrent(gen uint64) bool
	CommitInstructions(gen uint64, st style.Style) bool
}

// #endregion backend

// #region outcome
// Phase is where a refresh is in its lifecycle.
type Phase int

const (
	Scheduled Phase = iota
	InFlight
	Applied
	Discarded
	Failed
)

func (p Phase) String() string {
	switch p {
	case Scheduled:
		return "scheduled"
	case InFlight:
		return "in_flight"
	case Applied:
		return "applied"
	case Discarded:
		return "discarded"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether no further transitions follow p.
func (p Phase) Terminal() bool {
	return p == Applied || p == Discarded || p == Failed
}

// MarshalText renders the phase name in JSON payloads.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Outcome is the terminal report for one scheduled refresh.
type Outcome struct {
	Generation uint64      `json:"generation"`
	Style      style.Style `json:"style"`
	Phase      Phase       `json:"phase"`
	Attempts   int         `json:"attempts"`
	Reason     string      `json:"reason,omitempty"`
	Err        error       `json:"-"`
	At         time.Time   `json:"at"`
}

// OutcomeFunc is called once per Schedule with the terminal outcome. It runs on
// the refresh goroutine and must not block.
type OutcomeFunc func(Outcome)

// #endregion outcome

// #region config
// Config bounds refresh timing.
type Config struct {
	Debounce     time.Duration // wait before pushing; 0 pushes immediately
	Timeout      time.Duration // per-attempt bound on the backend call
	RetryBackoff time.Duration // initial delay before the single retry
}

const (
	DefaultDebounce     = 250 * time.Millisecond
	DefaultTimeout      = 10 * time.Second
	DefaultRetryBackoff = 500 * time.Millisecond
)

// DefaultConfig returns the production timings.
func DefaultConfig() Config {
	return Config{
		Debounce:     DefaultDebounce,
		Timeout:      DefaultTimeout,
		RetryBackoff: DefaultRetryBackoff,
	}
}

// #endregion config
