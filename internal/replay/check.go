package replay

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/danielpatrickdp/facilitator/go-controller/internal/gate"
	"github.com/danielpatrickdp/facilitator/go-controller/internal/logging"
	"github.com/danielpatrickdp/facilitator/go-controller/internal/style"
)

// Divergence is a journaled tick whose decision the gate would not reproduce.
type Divergence struct {
	EntryID  int64
	At       time.Time
	Style    string
	Score    float64
	Recorded string
	Replayed string
	Reason   string
}

func (d Divergence) String() string {
	return fmt.Sprintf("entry %d at %s (%s, score %.2f): recorded %s, gate says %s (%s)",
		d.EntryID, d.At.Format(time.RFC3339), d.Style, d.Score, d.Recorded, d.Replayed, d.Reason)
}

// CheckJournal re-runs gate.Decide over the tick entries of one session and
// reports every decision that differs from what was recorded. Entries may be
// given in any order. The cooldown clock follows the recorded interventions,
// so one divergence does not cascade into the rest of the log.
func CheckJournal(entries []logging.Entry) ([]Divergence, error) {
	ticks := make([]logging.Entry, 0, len(entries))
	for _, e := range entries {
		if e.Kind == logging.KindTick {
			ticks = append(ticks, e)
		}
	}
	sort.SliceStable(ticks, func(i, j int) bool {
		if ticks[i].CreatedAt.Equal(ticks[j].CreatedAt) {
			return ticks[i].ID < ticks[j].ID
		}
		return ticks[i].CreatedAt.Before(ticks[j].CreatedAt)
	})

	var (
		out  []Divergence
		last time.Time
	)
	for _, e := range ticks {
		params, err := style.ParamsFor(style.Style(e.Style))
		if err != nil {
			return out, fmt.Errorf("entry %d: %w", e.ID, err)
		}
		d, err := gate.Decide(e.Score, params, e.CreatedAt, last)
		if err != nil {
			return out, fmt.Errorf("entry %d: %w", e.ID, err)
		}

		if d.Action != e.Decision && !(heldOff(e) && d.Intervene()) {
			out = append(out, Divergence{
				EntryID:  e.ID,
				At:       e.CreatedAt,
				Style:    e.Style,
				Score:    e.Score,
				Recorded: e.Decision,
				Replayed: d.Action,
				Reason:   d.Reason,
			})
		}
		if e.Decision == gate.ActionIntervene {
			last = e.CreatedAt
		}
	}
	return out, nil
}

// heldOff reports whether a recorded suppression came from a quiet request or
// override grace rather than the gate itself.
func heldOff(e logging.Entry) bool {
	if e.Decision != gate.ActionSuppress {
		return false
	}
	return strings.HasPrefix(e.Reason, gate.QuietReason) || strings.HasPrefix(e.Reason, gate.OverrideReason)
}
