package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/danielpatrickdp/facilitator/go-controller/internal/event"
	"github.com/danielpatrickdp/facilitator/go-controller/internal/state"
)

// #region frames
// errorFrame is sent back on the socket when a control message is refused.
type errorFrame struct {
	Type  string `json:"type"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

// #endregion frames

// #region upgrade
func (s *Server) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return strings.EqualFold(u.Host, r.Host)
}

// serveWS upgrades the connection. Inbound text frames are control messages;
// outbound frames are bus envelopes, starting with the current snapshot.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{CheckOrigin: s.originAllowed}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	participant := participantOf(r)
	log := s.log.With().Str("participant", participant).Logger()
	log.Info().Msg("websocket connected")
	defer log.Info().Msg("websocket disconnected")

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	var events <-chan event.Envelope
	if s.bus != nil {
		events, err = s.bus.Subscribe(ctx)
		if err != nil {
			log.Error().Err(err).Msg("subscribe")
			return
		}
	}

	replies := make(chan any, 8)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer conn.Close()
		defer cancel()
		s.writeLoop(ctx, conn, events, replies)
	}()

	s.readLoop(conn, participant, replies)
	cancel()
	<-writerDone
}

// #endregion upgrade

// #region loops
func (s *Server) readLoop(conn *websocket.Conn, participant string, replies chan<- any) {
	conn.SetReadLimit(s.cfg.MaxMessageBytes)
	pongWait := 2 * s.cfg.PingInterval
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Err(err).Str("participant", participant).Msg("websocket read")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		if kind != websocket.TextMessage {
			continue
		}
		if _, err := s.control.HandleMessage(participant, data); err != nil {
			_, code := controlError(err)
			select {
			case replies <- errorFrame{Type: "error", Code: code, Error: err.Error()}:
			default:
			}
		}
	}
}

func (s *Server) writeLoop(ctx context.Context, conn *websocket.Conn, events <-chan event.Envelope, replies <-chan any) {
	ping := time.NewTicker(s.cfg.PingInterval)
	defer ping.Stop()

	write := func(v any) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		if err := conn.WriteJSON(v); err != nil {
			s.log.Debug().Err(err).Msg("websocket write")
			return false
		}
		return true
	}

	initial := s.snapshotEnvelope()
	if !write(initial) {
		return
	}
	var stale staleFilter
	stale.fresh(initial)

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(s.cfg.WriteTimeout))
			return
		case env, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if !stale.fresh(env) {
				continue
			}
			if !write(env) {
				return
			}
		case msg := <-replies:
			if !write(msg) {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.WriteTimeout)); err != nil {
				return
			}
		}
	}
}

func (s *Server) snapshotEnvelope() event.Envelope {
	data, _ := json.Marshal(s.session.Snapshot(s.now()))
	return event.Envelope{ID: uuid.New().String(), Type: event.Topic(state.SnapshotType), Data: data}
}

// staleFilter drops state snapshots older than one already sent on the
// connection. Other envelopes always pass.
type staleFilter struct {
	seen       bool
	generation uint64
}

func (f *staleFilter) fresh(env event.Envelope) bool {
	if env.Type != event.TopicState {
		return true
	}
	gen := gjson.GetBytes(env.Data, "generation")
	if !gen.Exists() {
		return true
	}
	if f.seen && gen.Uint() < f.generation {
		return false
	}
	f.seen, f.generation = true, gen.Uint()
	return true
}

// #endregion loops
