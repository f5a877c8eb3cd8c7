package replay

import (
	"sort"
	"strings"
	"time"

	"github.com/danielpatrickdp/facilitator/go-controller/internal/gate"
	"github.com/danielpatrickdp/facilitator/go-controller/internal/logging"
	"github.com/danielpatrickdp/facilitator/go-controller/internal/state"
)

// Stand-ins for the unrecorded transcript lines that opened a quiet window or
// an override grace.
const (
	quietUtterance    = "please be quiet"
	overrideUtterance = "let's keep going"
)

// FixtureFromJournal rebuilds a fixture from one session's journal entries so
// a recorded session can be replayed against the current gate. Ticks keep
// their recorded scores, style changes are replayed as control requests, and
// quiet windows and override graces are reopened from the suppression
// reasons. Refresh outcomes and dropped control messages are not replayable
// and are skipped.
func FixtureFromJournal(entries []logging.Entry, quiet, override time.Duration) Fixture {
	if quiet <= 0 {
		quiet = state.DefaultQuiet
	}
	if override <= 0 {
		override = state.DefaultOverride
	}
	sorted := append([]logging.Entry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].ID < sorted[j].ID
		}
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	var f Fixture
	if len(sorted) == 0 {
		return f
	}
	f.Description = "exported from session " + sorted[0].SessionID
	f.InitialStyle = initialStyle(sorted)

	type pending struct {
		step FixtureStep
		want FixtureExpectedResult
	}
	var (
		out      []pending
		base     = sorted[0].CreatedAt
		scoreErr = map[time.Time]string{}
	)
	offset := func(t time.Time) float64 { return t.Sub(base).Seconds() }

	for _, e := range sorted {
		at := offset(e.CreatedAt)
		switch {
		case e.Kind == logging.KindScoreErr && e.Decision == gate.ActionSuppress:
			scoreErr[e.CreatedAt] = e.Reason

		case e.Kind == logging.KindScoreErr:
			score := e.Score
			out = append(out, pending{
				step: FixtureStep{AtSeconds: at, Score: &score},
				want: FixtureExpectedResult{AtSeconds: at, Kind: StepTick, Action: "error"},
			})

		case e.Kind == logging.KindTick:
			step := FixtureStep{AtSeconds: at}
			if reason, ok := scoreErr[e.CreatedAt]; ok {
				step.ScoreError = reason
				delete(scoreErr, e.CreatedAt)
			} else {
				score := e.Score
				step.Score = &score
			}
			out = append(out, pending{
				step: step,
				want: FixtureExpectedResult{AtSeconds: at, Kind: StepTick, Action: e.Decision, Style: e.Style},
			})
			if remaining, ok := heldOffRemaining(e, gate.QuietReason); ok {
				opened := e.CreatedAt.Add(remaining - quiet)
				out = append(out, pending{step: FixtureStep{AtSeconds: offset(opened), Speaker: "participant", Text: quietUtterance}})
			}
			if remaining, ok := heldOffRemaining(e, gate.OverrideReason); ok {
				opened := e.CreatedAt.Add(remaining - override)
				out = append(out, pending{step: FixtureStep{AtSeconds: offset(opened), Speaker: "participant", Text: overrideUtterance}})
			}

		case e.Kind == logging.KindStyle || (e.Kind == logging.KindControl && e.Style != ""):
			out = append(out, pending{
				step: FixtureStep{AtSeconds: at, Style: e.Style},
				want: FixtureExpectedResult{AtSeconds: at, Kind: StepStyle, Action: e.Decision},
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].step.AtSeconds < out[j].step.AtSeconds })
	shift := 0.0
	if len(out) > 0 && out[0].step.AtSeconds < 0 {
		shift = -out[0].step.AtSeconds
	}
	for _, p := range out {
		p.step.AtSeconds += shift
		f.Steps = append(f.Steps, p.step)
		if p.want.Action != "" {
			p.want.AtSeconds += shift
			f.ExpectedResults = append(f.ExpectedResults, p.want)
		}
	}
	return f
}

// initialStyle is the style in force before the first journaled entry.
func initialStyle(sorted []logging.Entry) string {
	for _, e := range sorted {
		switch e.Kind {
		case logging.KindTick:
			return e.Style
		case logging.KindStyle:
			if prev, _, ok := strings.Cut(e.Reason, " -> "); ok && e.Decision == "accepted" {
				return prev
			}
			if e.Decision == "noop" {
				return e.Style
			}
		}
	}
	return ""
}

// heldOffRemaining extracts the time left on the window named by prefix from
// a tick that window suppressed.
func heldOffRemaining(e logging.Entry, prefix string) (time.Duration, bool) {
	if e.Decision != gate.ActionSuppress || !strings.HasPrefix(e.Reason, prefix) {
		return 0, false
	}
	raw := strings.TrimSpace(strings.TrimPrefix(e.Reason, prefix+" for another"))
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, false
	}
	return d, true
}
