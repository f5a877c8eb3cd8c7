package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/danielpatrickdp/facilitator/go-controller/internal/event"
	"github.com/danielpatrickdp/facilitator/go-controller/internal/gate"
	"github.com/danielpatrickdp/facilitator/go-controller/internal/logging"
	"github.com/danielpatrickdp/facilitator/go-controller/internal/state"
)

// #region config
// Config holds loop timing.
type Config struct {
	Interval     time.Duration // tick interval T
	ScoreTimeout time.Duration // per-tick scorer bound; 0 means the tick context only
	EmitTimeout  time.Duration // bound on delivering a decided intervention; default 5s
}

// DefaultEmitTimeout bounds Sink.Emit when Config.EmitTimeout is unset.
const DefaultEmitTimeout = 5 * time.Second

// Publisher is the subset of the event bus the loop needs.
type Publisher interface {
	Publish(topic event.Topic, payload any) error
}

// Deps are the collaborators a Loop talks to. Session and Scorer are required.
type Deps struct {
	Session   *state.Session
	Scorer    Scorer
	Sink      Sink             // optional
	Publisher Publisher        // optional, receives a snapshot after every tick
	Journal   logging.Recorder // optional
	Log       zerolog.Logger
}

// #endregion config

// #region loop-struct
// Loop periodically scores the transcript window and triggers interventions.
type Loop struct {
	cfg       Config
	session   *state.Session
	scorer    Scorer
	sink      Sink
	publisher Publisher
	journal   logging.Recorder
	log       zerolog.Logger
}

// NewLoop validates cfg and deps and returns a loop ready to Run.
func NewLoop(cfg Config, deps Deps) (*Loop, error) {
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("monitor: tick interval must be positive, got %s", cfg.Interval)
	}
	if deps.Session == nil || deps.Scorer == nil {
		return nil, errors.New("monitor: session and scorer are required")
	}
	l := &Loop{
		cfg:       cfg,
		session:   deps.Session,
		scorer:    deps.Scorer,
		sink:      deps.Sink,
		publisher: deps.Publisher,
		journal:   deps.Journal,
		log:       deps.Log,
	}
	if l.journal == nil {
		l.journal = logging.Discard
	}
	if l.cfg.EmitTimeout <= 0 {
		l.cfg.EmitTimeout = DefaultEmitTimeout
	}
	return l, nil
}

// #endregion loop-struct

// #region run
// Run ticks every cfg.Interval until ctx is done. A tick that has started
// always runs to completion; cancellation is only observed between ticks.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	l.log.Info().Dur("interval", l.cfg.Interval).Str("session_id", l.session.ID()).Msg("monitor loop started")
	defer l.log.Info().Str("session_id", l.session.ID()).Msg("monitor loop stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if _, err := l.Tick(ctx, now); err != nil {
				l.log.Error().Err(err).Msg("tick failed")
			}
		}
	}
}

// #endregion run

// #region tick
// Tick runs one scoring pass at now. Scorer failures degrade to score 0.
// An invalid score fails this tick only and is returned.
func (l *Loop) Tick(ctx context.Context, now time.Time) (TickResult, error) {
	in := l.session.TickInput(now)
	res := TickResult{At: now, Style: in.Style}

	score, err := l.score(ctx, in)
	if err != nil {
		res.ScoreErr = err
		l.log.Warn().Err(err).Int("window", len(in.Window)).Msg("scorer failed, treating as score 0")
		l.record(logging.Entry{
			Kind:     logging.KindScoreErr,
			Style:    string(in.Style),
			Decision: gate.ActionSuppress,
			Reason:   err.Error(),
		}, now)
		score = 0
	}
	res.Score = score

	if ctx.Err() != nil {
		res.Skipped = true
		return res, nil
	}

	d, current, err := l.session.DecideAndRecord(score, now)
	res.Style = current
	if err != nil {
		l.log.Error().Err(err).Float64("score", score).Msg("gate rejected score")
		l.record(logging.Entry{
			Kind:     logging.KindScoreErr,
			Style:    string(current),
			Decision: "rejected",
			Reason:   err.Error(),
			Score:    score,
		}, now)
		return res, fmt.Errorf("tick at %s: %w", now.Format(time.RFC3339), err)
	}
	res.Decision = d

	var payload string
	if d.Intervene() {
		iv := Intervention{
			ID:        uuid.New().String(),
			SessionID: l.session.ID(),
			Style:     current,
			Score:     score,
			Threshold: d.Threshold,
			Topic:     in.Topic(),
			Reason:    d.Reason,
			At:        now.UTC(),
		}
		res.Intervention = &iv
		if b, err := json.Marshal(iv); err == nil {
			payload = string(b)
		}
	}

	l.record(logging.Entry{
		Kind:        logging.KindTick,
		Style:       string(current),
		Decision:    d.Action,
		Reason:      d.Reason,
		Score:       score,
		PayloadJSON: payload,
	}, now)

	l.log.Debug().
		Str("style", string(current)).
		Float64("score", score).
		Str("action", d.Action).
		Str("reason", d.Reason).
		Msg("tick")

	if res.Intervention != nil {
		l.log.Info().
			Str("intervention_id", res.Intervention.ID).
			Str("style", string(current)).
			Float64("score", score).
			Msg("intervening")
		l.emit(ctx, *res.Intervention)
	}

	l.publishSnapshot(now)
	return res, nil
}

// emit delivers an intervention the gate already recorded. Shutdown must not
// cut it short, so the tick's cancellation is detached and only the emit
// timeout applies.
func (l *Loop) emit(ctx context.Context, iv Intervention) {
	if l.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.cfg.EmitTimeout)
	defer cancel()
	if err := l.sink.Emit(ctx, iv); err != nil {
		l.log.Error().Err(err).Str("intervention_id", iv.ID).Msg("emit intervention")
	}
}

func (l *Loop) score(ctx context.Context, in state.TickInput) (float64, error) {
	if l.cfg.ScoreTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.ScoreTimeout)
		defer cancel()
	}
	return l.scorer.Score(ctx, in)
}

func (l *Loop) publishSnapshot(now time.Time) {
	if l.publisher == nil {
		return
	}
	if err := l.publisher.Publish(event.TopicState, l.session.Snapshot(now)); err != nil {
		l.log.Warn().Err(err).Msg("publish snapshot")
	}
}

func (l *Loop) record(e logging.Entry, now time.Time) {
	e.SessionID = l.session.ID()
	e.CreatedAt = now.UTC()
	if err := l.journal.Record(e); err != nil {
		l.log.Warn().Err(err).Str("kind", string(e.Kind)).Msg("journal write failed")
	}
}

// #endregion tick
