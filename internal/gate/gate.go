package gate

import (
	"fmt"
	"math"
	"time"

	"github.com/danielpatrickdp/facilitator/go-controller/internal/style"
)

// #region decide
// Decide returns an intervene decision iff score >= params.TangentThreshold and
// either no intervention happened yet (last is zero) or at least the style's
// cooldown has elapsed since last. Scores outside [0,1] fail with ErrInvalidScore.
func Decide(score float64, params style.Params, now time.Time, last time.Time) (GateDecision, error) {
	if math.IsNaN(score) || score < 0 || score > 1 {
		return GateDecision{}, fmt.Errorf("%w: %v", ErrInvalidScore, score)
	}

	d := GateDecision{
		Score:     score,
		Threshold: params.TangentThreshold,
		Cooldown:  params.Cooldown(),
	}
	if !last.IsZero() {
		d.SinceLast = now.Sub(last)
	}

	if score < params.TangentThreshold {
		d.Action = ActionSuppress
		d.Reason = fmt.Sprintf("score %.2f below threshold %.2f", score, params.TangentThreshold)
		return d, nil
	}

	if !last.IsZero() && d.SinceLast < d.Cooldown {
		d.Action = ActionSuppress
		d.Reason = fmt.Sprintf("cooldown: %s since last intervention, need %s",
			d.SinceLast.Truncate(time.Millisecond), d.Cooldown)
		return d, nil
	}

	d.Action = ActionIntervene
	d.Reason = fmt.Sprintf("score %.2f >= threshold %.2f", score, params.TangentThreshold)
	return d, nil
}

// #endregion decide

// #region evaluate
// Evaluate runs Decide after honouring an active quiet request or override
// grace. The score is validated even while held off so scorer bugs still
// surface. Quiet wins when both are active.
func Evaluate(in Input) (GateDecision, error) {
	d, err := Decide(in.Score, in.Params, in.Now, in.LastInterventionAt)
	if err != nil {
		return d, err
	}
	if !d.Intervene() {
		return d, nil
	}
	switch {
	case active(in.QuietUntil, in.Now):
		d.Action = ActionSuppress
		d.Reason = fmt.Sprintf("%s for another %s", QuietReason, in.QuietUntil.Sub(in.Now).Truncate(time.Second))
	case active(in.OverrideUntil, in.Now):
		d.Action = ActionSuppress
		d.Reason = fmt.Sprintf("%s for another %s", OverrideReason, in.OverrideUntil.Sub(in.Now).Truncate(time.Second))
	}
	return d, nil
}

func active(until, now time.Time) bool {
	return !until.IsZero() && now.Before(until)
}

// #endregion evaluate
