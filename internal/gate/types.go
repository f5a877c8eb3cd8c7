package gate

import (
	"errors"
	"time"

	"github.com/danielpatrickdp/facilitator/go-controller/internal/style"
)

// #region errors
// ErrInvalidScore marks a scorer contract violation: the score was outside [0,1].
var ErrInvalidScore = errors.New("invalid score")

// #endregion errors

// #region actions
const (
	ActionIntervene = "intervene"
	ActionSuppress  = "suppress"
)

// Suppression reason prefixes for windows opened by participants.
const (
	QuietReason    = "quiet requested"
	OverrideReason = "override grace"
)

// #endregion actions

// #region gate-decision
// GateDecision is the output of a gate evaluation.
type GateDecision struct {
	Action    string // "intervene" | "suppress"
	Reason    string
	Score     float64
	Threshold float64
	Cooldown  time.Duration
	SinceLast time.Duration // zero when there was no prior intervention
}

// Intervene reports whether the decision is to speak.
func (d GateDecision) Intervene() bool {
	return d.Action == ActionIntervene
}

// #endregion gate-decision

// #region input
// Input bundles everything Evaluate looks at.
type Input struct {
	Score              float64
	Params             style.Params
	Now                time.Time
	LastInterventionAt time.Time // zero when absent
	QuietUntil         time.Time // zero when no quiet request is active
	OverrideUntil      time.Time // zero when no override grace is active
}

// #endregion input
