package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/danielpatrickdp/facilitator/go-controller/internal/gate"
	"github.com/danielpatrickdp/facilitator/go-controller/internal/state"
	"github.com/danielpatrickdp/facilitator/go-controller/internal/style"
)

// #region scorer
// ErrScorerUnavailable is returned by scorers that cannot produce a score
// right now (empty window, backend down). The loop treats it as score 0.
var ErrScorerUnavailable = errors.New("scorer unavailable")

// Scorer rates how far the conversation in a window has drifted from its
// purpose. Scores must be in [0,1].
type Scorer interface {
	Score(ctx context.Context, in state.TickInput) (float64, error)
}

// ScorerFunc adapts a function to Scorer.
type ScorerFunc func(ctx context.Context, in state.TickInput) (float64, error)

// Score calls f.
func (f ScorerFunc) Score(ctx context.Context, in state.TickInput) (float64, error) {
	return f(ctx, in)
}

// #endregion scorer

// #region intervention
// Intervention is emitted when the gate decides the moderator should speak.
type Intervention struct {
	ID        string      `json:"id"`
	SessionID string      `json:"session_id"`
	Style     style.Style `json:"style"`
	Score     float64     `json:"score"`
	Threshold float64     `json:"threshold"`
	Topic     string      `json:"topic,omitempty"`
	Reason    string      `json:"reason"`
	At        time.Time   `json:"at"`
}

// Sink receives interventions. Implementations must not block for long; the
// loop calls Emit on its own goroutine.
type Sink interface {
	Emit(ctx context.Context, iv Intervention) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, iv Intervention) error

// Emit calls f.
func (f SinkFunc) Emit(ctx context.Context, iv Intervention) error {
	return f(ctx, iv)
}

// #endregion intervention

// #region tick-result
// TickResult describes one completed tick.
type TickResult struct {
	At           time.Time
	Score        float64
	ScoreErr     error // scorer failure, already degraded to score 0
	Decision     gate.GateDecision
	Style        style.Style
	Intervention *Intervention // nil unless the gate said intervene
	Skipped      bool          // cancelled before the decide step
}

// #endregion tick-result
