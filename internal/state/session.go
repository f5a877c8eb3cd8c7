package state

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/facilitator/go-controller/internal/gate"
	"github.com/danielpatrickdp/facilitator/go-controller/internal/style"
)

// #region session-struct
// Session is the single owner of mutable facilitation state. Every read or
// write goes through mu; style params are derived from style on each read and
// are never stored on their own.
type Session struct {
	mu sync.Mutex

	id        string
	window    time.Duration
	retention time.Duration
	quiet     time.Duration
	override  time.Duration

	style              style.Style
	generation         uint64
	lastInterventionAt time.Time
	quietUntil         time.Time
	overrideUntil      time.Time
	context            PromptContext
	transcript         []Utterance

	appliedGeneration uint64
	appliedStyle      style.Style
}

// #endregion session-struct

// #region constructor
// New creates a session in its initial style (moderate unless overridden).
func New(opts Options) (*Session, error) {
	initial := opts.InitialStyle
	if initial == "" {
		initial = style.Default
	}
	if !initial.Valid() {
		return nil, fmt.Errorf("initial style: %w: %q", style.ErrUnknownStyle, string(initial))
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	s := &Session{
		id:        id,
		window:    orDefault(opts.Window, DefaultWindow),
		retention: orDefault(opts.Retention, DefaultRetention),
		quiet:     orDefault(opts.Quiet, DefaultQuiet),
		override:  orDefault(opts.Override, DefaultOverride),
		style:     initial,
		context:   opts.Context.Clone(),
	}
	if s.retention < s.window {
		s.retention = s.window
	}
	return s, nil
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// #endregion constructor

// #region style
// Style returns the current style.
func (s *Session) Style() style.Style {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.style
}

// Params returns the params derived from the current style.
func (s *Session) Params() style.Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	return style.MustProfile(s.style).Params
}

// ApplyStyle sets the style and bumps the generation in one critical section.
// Re-applying the current style is a no-op that leaves the generation alone.
func (s *Session) ApplyStyle(next style.Style, at time.Time) (StyleChange, error) {
	if !next.Valid() {
		return StyleChange{}, fmt.Errorf("%w: %q", style.ErrUnknownStyle, string(next))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	change := StyleChange{
		Previous: s.style,
		Current:  next,
		At:       at,
	}
	if next != s.style {
		s.style = next
		s.generation++
		change.Changed = true
	}
	change.Generation = s.generation
	change.Context = s.context.Clone()
	change.Snapshot = s.snapshotLocked(at)
	return change, nil
}

// Generation returns the current pending refresh generation.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// IsCurrent reports whether gen is still the latest generation.
func (s *Session) IsCurrent(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen == s.generation
}

// #endregion style

// #region instructions
// CommitInstructions records that instructions for gen were accepted by the
// backend. It returns false, leaving state untouched, when gen is stale or
// was already committed.
func (s *Session) CommitInstructions(gen uint64, st style.Style) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return false
	}
	if s.appliedStyle != "" && gen <= s.appliedGeneration {
		return false
	}
	s.appliedGeneration = gen
	s.appliedStyle = st
	return true
}

// AppliedInstructions returns the generation and style of the last committed
// instruction refresh. The style is empty if nothing was committed yet.
func (s *Session) AppliedInstructions() (uint64, style.Style) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appliedGeneration, s.appliedStyle
}

// #endregion instructions

// #region tick
// TickInput snapshots the scoring window together with the current style.
func (s *Session) TickInput(now time.Time) TickInput {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-s.window)
	var window []Utterance
	for _, u := range s.transcript {
		if u.At.After(cutoff) && !u.At.After(now) {
			window = append(window, u)
		}
	}
	return TickInput{
		Window:  window,
		Style:   s.style,
		Params:  style.MustProfile(s.style).Params,
		Context: s.context.Clone(),
	}
}

// DecideAndRecord runs the gate against the params of the style current at
// the moment of the call and, when the decision is to intervene, records now
// as the last intervention time before the lock is released.
func (s *Session) DecideAndRecord(score float64, now time.Time) (gate.GateDecision, style.Style, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.style
	d, err := gate.Evaluate(gate.Input{
		Score:              score,
		Params:             style.MustProfile(current).Params,
		Now:                now,
		LastInterventionAt: s.lastInterventionAt,
		QuietUntil:         s.quietUntil,
		OverrideUntil:      s.overrideUntil,
	})
	if err != nil {
		return d, current, err
	}
	if d.Intervene() && now.After(s.lastInterventionAt) {
		s.lastInterventionAt = now
	}
	return d, current, nil
}

// LastInterventionAt returns the last intervention time, zero if none.
func (s *Session) LastInterventionAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastInterventionAt
}

// #endregion tick

// #region transcript
// AddUtterance appends a transcript line and drops lines older than the
// retention window. A quiet request opens a quiet window; asking to keep
// going opens an override grace during which tangents are let run.
func (s *Session) AddUtterance(speaker, text string, at time.Time) Signal {
	sig := Signal{Quiet: IsQuietRequest(text), Override: IsOverrideRequest(text)}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.transcript = append(s.transcript, Utterance{Speaker: speaker, Text: text, At: at})
	cutoff := at.Add(-s.retention)
	kept := s.transcript[:0]
	for _, u := range s.transcript {
		if u.At.After(cutoff) {
			kept = append(kept, u)
		}
	}
	s.transcript = kept

	if sig.Quiet {
		if until := at.Add(s.quiet); until.After(s.quietUntil) {
			s.quietUntil = until
		}
	}
	if sig.Override {
		if until := at.Add(s.override); until.After(s.overrideUntil) {
			s.overrideUntil = until
		}
	}
	return sig
}

// QuietUntil returns the end of the active quiet request, zero if none was made.
func (s *Session) QuietUntil() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quietUntil
}

// OverrideUntil returns the end of the active override grace, zero if none.
func (s *Session) OverrideUntil() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overrideUntil
}

// #endregion transcript

// #region prompt-context
// SetPromptContext replaces the prompt context wholesale.
func (s *Session) SetPromptContext(pc PromptContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.context = pc.Clone()
}

// PromptContext returns a copy of the prompt context.
func (s *Session) PromptContext() PromptContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.context.Clone()
}

// #endregion prompt-context

// #region snapshot
// Snapshot returns the broadcast view of the session.
func (s *Session) Snapshot(now time.Time) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(now)
}

func (s *Session) snapshotLocked(now time.Time) Snapshot {
	params := style.MustProfile(s.style).Params
	snap := Snapshot{
		Type:              SnapshotType,
		SessionID:         s.id,
		Style:             s.style,
		TangentThreshold:  params.TangentThreshold,
		CooldownSeconds:   params.CooldownSeconds,
		Generation:        s.generation,
		AppliedGeneration: s.appliedGeneration,
		AppliedStyle:      s.appliedStyle,
		UpdatedAt:         now.UTC(),
	}
	if !s.lastInterventionAt.IsZero() {
		t := s.lastInterventionAt.UTC()
		snap.LastInterventionAt = &t
	}
	if s.quietUntil.After(now) {
		t := s.quietUntil.UTC()
		snap.QuietUntil = &t
	}
	if s.overrideUntil.After(now) {
		t := s.overrideUntil.UTC()
		snap.OverrideUntil = &t
	}
	return snap
}

// #endregion snapshot
