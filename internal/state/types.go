package state

import (
	"sort"
	"time"

	"github.com/danielpatrickdp/facilitator/go-controller/internal/style"
)

// #region utterance
// Utterance is one finalized transcript line.
type Utterance struct {
	Speaker string    `json:"speaker"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

// #endregion utterance

// #region prompt-context
// PromptContext is opaque session metadata (agenda, participants, ...) used
// when rendering instructions. Well-known keys are listed below; anything else
// is passed through untouched.
type PromptContext map[string]string

const (
	KeyAgendaTitle      = "agenda_title"
	KeyCurrentTopic     = "current_topic"
	KeyTopicDescription = "topic_description"
	KeyRemainingItems   = "remaining_items"
	KeyParticipants     = "participants"
)

// Clone returns an independent copy.
func (pc PromptContext) Clone() PromptContext {
	out := make(PromptContext, len(pc))
	for k, v := range pc {
		out[k] = v
	}
	return out
}

// Keys returns the keys in sorted order.
func (pc PromptContext) Keys() []string {
	keys := make([]string, 0, len(pc))
	for k := range pc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// #endregion prompt-context

// #region tick-input
// TickInput is the snapshot a monitor tick scores against.
type TickInput struct {
	Window  []Utterance
	Style   style.Style
	Params  style.Params
	Context PromptContext
}

// Topic returns the current agenda topic, if any.
func (in TickInput) Topic() string {
	return in.Context[KeyCurrentTopic]
}

// #endregion tick-input

// #region style-change
// StyleChange describes the result of an ApplyStyle call.
type StyleChange struct {
	Previous   style.Style
	Current    style.Style
	Changed    bool
	Generation uint64        // generation after the call
	Context    PromptContext // copy taken in the same critical section
	Snapshot   Snapshot      // broadcast view taken in the same critical section
	At         time.Time
}

// #endregion style-change

// #region snapshot
// SnapshotType is the envelope type observers see on the broadcast channel.
const SnapshotType = "session_state"

// Snapshot is the externally broadcast view of a session. It is always taken
// under the session lock, so Style and the derived params are never mixed.
type Snapshot struct {
	Type               string      `json:"type"`
	SessionID          string      `json:"session_id"`
	Style              style.Style `json:"style"`
	TangentThreshold   float64     `json:"tangent_threshold"`
	CooldownSeconds    uint        `json:"cooldown_seconds"`
	Generation         uint64      `json:"generation"`
	AppliedGeneration  uint64      `json:"applied_generation"`
	AppliedStyle       style.Style `json:"applied_style,omitempty"`
	LastInterventionAt *time.Time  `json:"last_intervention_at,omitempty"`
	QuietUntil         *time.Time  `json:"quiet_until,omitempty"`
	OverrideUntil      *time.Time  `json:"override_until,omitempty"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// #endregion snapshot

// #region options
// Options configures a new Session. Zero values fall back to defaults.
type Options struct {
	ID           string
	InitialStyle style.Style
	Window       time.Duration // scoring window, default 60s
	Retention    time.Duration // transcript retention, default 120s
	Quiet        time.Duration // quiet request length, default 120s
	Override     time.Duration // override grace length, default 120s
	Context      PromptContext
}

const (
	DefaultWindow    = 60 * time.Second
	DefaultRetention = 120 * time.Second
	DefaultQuiet     = 120 * time.Second
	DefaultOverride  = 120 * time.Second
)

// #endregion options

// #region signal
// Signal reports what an appended utterance asked for.
type Signal struct {
	Quiet    bool `json:"quiet"`
	Override bool `json:"override"`
}

// #endregion signal
