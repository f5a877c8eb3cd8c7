package logging

import "time"

// #region kinds
// Kind classifies a journal entry.
type Kind string

const (
	KindTick     Kind = "tick"             // one monitor decision
	KindStyle    Kind = "style_change"     // an accepted style change
	KindControl  Kind = "control_rejected" // a dropped or rejected control message
	KindRefresh  Kind = "refresh"          // terminal outcome of an instruction refresh
	KindScoreErr Kind = "score_error"      // scorer failure or contract violation
)

// #endregion kinds

// #region entry
// Entry is a single row in the decision_log table.
type Entry struct {
	ID          int64
	SessionID   string
	EventID     string
	Kind        Kind
	Style       string
	Generation  uint64
	Decision    string // "intervene" | "suppress" | "applied" | "discarded" | "failed" | "accepted" | "noop" | "rejected"
	Reason      string
	Score       float64
	PayloadJSON string
	CreatedAt   time.Time
}

// #endregion entry

// #region recorder
// Recorder accepts journal entries. Journal is the SQLite implementation.
type Recorder interface {
	Record(Entry) error
}

// Discard is a Recorder that drops everything.
var Discard Recorder = discard{}

type discard struct{}

func (discard) Record(Entry) error { return nil }

// #endregion recorder
