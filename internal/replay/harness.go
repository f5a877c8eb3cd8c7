package replay

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/danielpatrickdp/facilitator/go-controller/internal/control"
	"github.com/danielpatrickdp/facilitator/go-controller/internal/logging"
	"github.com/danielpatrickdp/facilitator/go-controller/internal/monitor"
	"github.com/danielpatrickdp/facilitator/go-controller/internal/scorer"
	"github.com/danielpatrickdp/facilitator/go-controller/internal/state"
	"github.com/danielpatrickdp/facilitator/go-controller/internal/style"
)

// #region types

// StepKind is what a fixture step does.
type StepKind string

const (
	StepTick      StepKind = "tick"
	StepStyle     StepKind = "style"
	StepUtterance StepKind = "utterance"
)

// Epoch is the wall-clock time that fixture offsets are added to.
var Epoch = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

// Result is the outcome of one step.
type Result struct {
	AtSeconds float64
	Kind      StepKind
	Action    string // tick: "intervene" | "suppress" | "error"; style: "accepted" | "noop" | "rejected"; utterance: "quiet" | "override" | "appended"
	Reason    string
	Style     style.Style
	Score     float64
	ScoreErr  bool // the scorer failed and the tick ran with score 0
}

// Summary provides aggregate stats from a replay run.
type Summary struct {
	Ticks         int
	Interventions int
	Suppressions  int
	Errors        int
	ScoreErrors   int
	StyleChanges  int
	FinalStyle    style.Style
}

// Mismatch describes an expected result that did not happen.
type Mismatch struct {
	AtSeconds float64
	Want      string
	Got       string
}

func (m Mismatch) String() string {
	return fmt.Sprintf("t=%.1fs: want %s, got %s", m.AtSeconds, m.Want, m.Got)
}

// #endregion types

// #region replay

// errScripted is returned by the scripted scorer for score_error steps.
var errScripted = errors.New("scripted scorer failure")

// Replay runs the fixture through a fresh session using the real controller
// and monitor loop. Ticks with a score use that score; ticks without one use
// the built-in lexical scorer. Entries are written to journal if non-nil.
func Replay(f *Fixture, journal logging.Recorder) ([]Result, *state.Session, error) {
	sess, err := state.New(f.ToOptions())
	if err != nil {
		return nil, nil, err
	}

	var next *FixtureStep
	lexical := scorer.NewLexical()
	scripted := monitor.ScorerFunc(func(ctx context.Context, in state.TickInput) (float64, error) {
		switch {
		case next.ScoreError != "":
			return 0, fmt.Errorf("%w: %s", errScripted, next.ScoreError)
		case next.Score != nil:
			return *next.Score, nil
		}
		return lexical.Score(ctx, in)
	})

	loop, err := monitor.NewLoop(monitor.Config{Interval: time.Second}, monitor.Deps{
		Session: sess,
		Scorer:  scripted,
		Journal: journal,
		Log:     zerolog.Nop(),
	})
	if err != nil {
		return nil, nil, err
	}
	ctrl := control.New(sess, nil, nil, journal, zerolog.Nop())

	ctx := context.Background()
	results := make([]Result, 0, len(f.Steps))
	for i := range f.Steps {
		step := &f.Steps[i]
		at := Epoch.Add(time.Duration(step.AtSeconds * float64(time.Second)))
		r := Result{AtSeconds: step.AtSeconds, Kind: step.Kind()}

		switch r.Kind {
		case StepStyle:
			res, err := ctrl.ApplyStyle(style.Style(step.Style), at)
			switch {
			case err != nil:
				r.Action, r.Reason = "rejected", err.Error()
			case res.Changed:
				r.Action = "accepted"
			default:
				r.Action = "noop"
			}
			r.Style = sess.Style()

		case StepUtterance:
			sig := sess.AddUtterance(step.Speaker, step.Text, at)
			switch {
			case sig.Quiet:
				r.Action = "quiet"
			case sig.Override:
				r.Action = "override"
			default:
				r.Action = "appended"
			}
			r.Style = sess.Style()

		case StepTick:
			next = step
			tr, err := loop.Tick(ctx, at)
			r.Style = tr.Style
			r.Score = tr.Score
			r.ScoreErr = tr.ScoreErr != nil
			if err != nil {
				r.Action, r.Reason = "error", err.Error()
			} else {
				r.Action, r.Reason = tr.Decision.Action, tr.Decision.Reason
			}
		}
		results = append(results, r)
	}
	return results, sess, nil
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []Result, final style.Style) Summary {
	s := Summary{FinalStyle: final}
	for _, r := range results {
		if r.ScoreErr {
			s.ScoreErrors++
		}
		switch {
		case r.Kind == StepStyle && r.Action == "accepted":
			s.StyleChanges++
		case r.Kind != StepTick:
		case r.Action == "intervene":
			s.Ticks++
			s.Interventions++
		case r.Action == "suppress":
			s.Ticks++
			s.Suppressions++
		case r.Action == "error":
			s.Ticks++
			s.Errors++
		}
	}
	return s
}

// Verify compares results against the fixture's expectations. Each expected
// entry matches the first result at the same offset (and kind, if set).
func Verify(results []Result, expected []FixtureExpectedResult) []Mismatch {
	var out []Mismatch
	for _, want := range expected {
		got, ok := findAt(results, want.AtSeconds, want.Kind)
		if !ok {
			out = append(out, Mismatch{AtSeconds: want.AtSeconds, Want: want.Action, Got: "no step"})
			continue
		}
		if got.Action != want.Action {
			out = append(out, Mismatch{AtSeconds: want.AtSeconds, Want: want.Action, Got: got.Action})
			continue
		}
		if want.Style != "" && string(got.Style) != want.Style {
			out = append(out, Mismatch{AtSeconds: want.AtSeconds, Want: "style " + want.Style, Got: "style " + string(got.Style)})
		}
	}
	return out
}

func findAt(results []Result, at float64, kind StepKind) (Result, bool) {
	for _, r := range results {
		if kind != "" && r.Kind != kind {
			continue
		}
		if math.Abs(r.AtSeconds-at) < 1e-6 {
			return r, true
		}
	}
	return Result{}, false
}

// #endregion replay
