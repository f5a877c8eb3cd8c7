package control

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/danielpatrickdp/facilitator/go-controller/internal/event"
	"github.com/danielpatrickdp/facilitator/go-controller/internal/logging"
	"github.com/danielpatrickdp/facilitator/go-controller/internal/state"
	"github.com/danielpatrickdp/facilitator/go-controller/internal/style"
)

// MessageSetStyle is the only control message type acted on.
const MessageSetStyle = "set_style"

// ErrForbidden is returned by Guard when a participant may not send control messages.
var ErrForbidden = errors.New("control message not permitted")

// #region deps
// Refresher schedules an instruction refresh. Schedule must not block.
type Refresher interface {
	Schedule(gen uint64, st style.Style, pc state.PromptContext)
}

// Publisher broadcasts state snapshots.
type Publisher interface {
	Publish(topic event.Topic, payload any) error
}

// Handler accepts raw control messages from a participant.
type Handler interface {
	HandleMessage(participant string, payload []byte) (Result, error)
}

// #endregion deps

// #region result
// Result reports what a control call did.
type Result struct {
	Applied    bool        `json:"applied"`    // the requested style is now current
	Changed    bool        `json:"changed"`    // the style actually moved and a refresh was scheduled
	Style      style.Style `json:"style"`
	Generation uint64      `json:"generation"`
	Dropped    string      `json:"dropped,omitempty"` // why a message was ignored, if it was
}

// #endregion result

// #region controller
// Controller applies style changes to a session.
type Controller struct {
	session   *state.Session
	refresher Refresher
	publisher Publisher
	journal   logging.Recorder
	log       zerolog.Logger
	now       func() time.Time
}

// New wires a controller. publisher and journal may be nil.
func New(session *state.Session, refresher Refresher, publisher Publisher, journal logging.Recorder, log zerolog.Logger) *Controller {
	if journal == nil {
		journal = logging.Discard
	}
	return &Controller{
		session:   session,
		refresher: refresher,
		publisher: publisher,
		journal:   journal,
		log:       log,
		now:       time.Now,
	}
}

// ApplyStyle switches the session to s. An unknown style returns
// style.ErrUnknownStyle and leaves the session untouched. Re-applying the
// current style succeeds without bumping the generation or scheduling a refresh.
func (c *Controller) ApplyStyle(s style.Style, requestedAt time.Time) (Result, error) {
	change, err := c.session.ApplyStyle(s, requestedAt)
	if err != nil {
		c.log.Warn().Err(err).Str("style", string(s)).Msg("style change rejected")
		c.record(logging.Entry{
			Kind:     logging.KindControl,
			Style:    string(s),
			Decision: "rejected",
			Reason:   err.Error(),
		}, requestedAt)
		return Result{}, err
	}

	res := Result{
		Applied:    true,
		Changed:    change.Changed,
		Style:      change.Current,
		Generation: change.Generation,
	}

	if !change.Changed {
		c.log.Debug().Str("style", string(s)).Msg("style unchanged")
		c.record(logging.Entry{
			Kind:       logging.KindStyle,
			Style:      string(s),
			Generation: change.Generation,
			Decision:   "noop",
			Reason:     "style already current",
		}, requestedAt)
		return res, nil
	}

	if c.refresher != nil {
		c.refresher.Schedule(change.Generation, change.Current, change.Context)
	}

	c.log.Info().
		Str("from", string(change.Previous)).
		Str("to", string(change.Current)).
		Uint64("generation", change.Generation).
		Msg("style changed")
	c.record(logging.Entry{
		Kind:       logging.KindStyle,
		Style:      string(change.Current),
		Generation: change.Generation,
		Decision:   "accepted",
		Reason:     fmt.Sprintf("%s -> %s", change.Previous, change.Current),
	}, requestedAt)

	if c.publisher != nil {
		if err := c.publisher.Publish(event.TopicState, change.Snapshot); err != nil {
			c.log.Warn().Err(err).Msg("publish snapshot")
		}
	}
	return res, nil
}

// #endregion controller

// #region messages
// HandleMessage decodes a control message and applies it. Messages of other
// types are ignored. Malformed messages are dropped with a warning and a zero
// error; only an unknown style value is reported back as an error.
func (c *Controller) HandleMessage(participant string, payload []byte) (Result, error) {
	at := c.now()

	if !gjson.ValidBytes(payload) {
		return c.drop(participant, "invalid json", at), nil
	}
	msg := gjson.ParseBytes(payload)
	if !msg.IsObject() {
		return c.drop(participant, "not an object", at), nil
	}

	typ := msg.Get("type")
	if typ.Type != gjson.String {
		return c.drop(participant, "missing or non-string type", at), nil
	}
	if typ.Str != MessageSetStyle {
		c.log.Debug().Str("participant", participant).Str("type", typ.Str).Msg("ignoring control message")
		return Result{Dropped: "unhandled type " + typ.Str}, nil
	}

	raw := msg.Get("style")
	if raw.Type != gjson.String {
		return c.drop(participant, "missing or non-string style", at), nil
	}

	s, err := style.Parse(raw.Str)
	if err != nil {
		c.log.Warn().Str("participant", participant).Str("style", raw.Str).Msg("unknown style requested")
		c.record(logging.Entry{
			Kind:     logging.KindControl,
			Style:    raw.Str,
			Decision: "rejected",
			Reason:   err.Error(),
		}, at)
		return Result{}, err
	}

	c.log.Debug().Str("participant", participant).Str("style", string(s)).Msg("set_style received")
	return c.ApplyStyle(s, at)
}

func (c *Controller) drop(participant, reason string, at time.Time) Result {
	c.log.Warn().Str("participant", participant).Str("reason", reason).Msg("dropping control message")
	c.record(logging.Entry{
		Kind:     logging.KindControl,
		Decision: "dropped",
		Reason:   reason,
	}, at)
	return Result{Dropped: reason}
}

func (c *Controller) record(e logging.Entry, at time.Time) {
	e.SessionID = c.session.ID()
	e.CreatedAt = at.UTC()
	if err := c.journal.Record(e); err != nil {
		c.log.Warn().Err(err).Str("kind", string(e.Kind)).Msg("journal write failed")
	}
}

// #endregion messages
