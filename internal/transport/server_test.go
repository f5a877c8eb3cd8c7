package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/facilitator/go-controller/internal/control"
	"github.com/danielpatrickdp/facilitator/go-controller/internal/event"
	"github.com/danielpatrickdp/facilitator/go-controller/internal/state"
	"github.com/danielpatrickdp/facilitator/go-controller/internal/style"
)

type env struct {
	session *state.Session
	bus     *event.Bus
	srv     *Server
	http    *httptest.Server
}

func newEnv(t *testing.T, allow control.AllowFunc) env {
	t.Helper()
	sess, err := state.New(state.Options{ID: "sess-1"})
	require.NoError(t, err)
	bus := event.NewBus(nil)
	ctrl := control.New(sess, nil, bus, nil, zerolog.Nop())

	cfg := DefaultConfig()
	cfg.PingInterval = time.Second
	srv := New(cfg, sess, control.Guard(ctrl, allow), bus, zerolog.Nop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
		ts.Close()
		_ = bus.Close()
	})
	return env{session: sess, bus: bus, srv: srv, http: ts}
}

func (e env) do(t *testing.T, method, path, body string, headers ...string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, e.http.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func TestHealthz(t *testing.T) {
	e := newEnv(t, nil)
	resp, body := e.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok","session_id":"sess-1"}`, string(body))
}

func TestGetSession(t *testing.T) {
	e := newEnv(t, nil)
	resp, body := e.do(t, http.MethodGet, "/v1/session", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap state.Snapshot
	require.NoError(t, json.Unmarshal(body, &snap))
	assert.Equal(t, state.SnapshotType, snap.Type)
	assert.Equal(t, style.Moderate, snap.Style)
	assert.Equal(t, 0.70, snap.TangentThreshold)
	assert.Equal(t, uint(30), snap.CooldownSeconds)
}

func TestPostControl(t *testing.T) {
	e := newEnv(t, nil)

	resp, body := e.do(t, http.MethodPost, "/v1/control", `{"type":"set_style","style":"aggressive"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var res control.Result
	require.NoError(t, json.Unmarshal(body, &res))
	assert.True(t, res.Changed)
	assert.Equal(t, style.Aggressive, e.session.Style())

	resp, _ = e.do(t, http.MethodPost, "/v1/control", `{"type":"set_style","style":"chatting"}`)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, style.Aggressive, e.session.Style())

	resp, body = e.do(t, http.MethodPost, "/v1/control", `not json`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &res))
	assert.NotEmpty(t, res.Dropped)
}

func TestPostControl_Guarded(t *testing.T) {
	e := newEnv(t, control.AllowParticipants("host"))

	resp, _ := e.do(t, http.MethodPost, "/v1/control", `{"type":"set_style","style":"gentle"}`, HeaderParticipant, "ana")
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, style.Moderate, e.session.Style())

	resp, _ = e.do(t, http.MethodPost, "/v1/control", `{"type":"set_style","style":"gentle"}`, HeaderParticipant, "host")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, style.Gentle, e.session.Style())
}

func TestPostTranscript(t *testing.T) {
	e := newEnv(t, nil)
	now := time.Now()
	e.srv.now = func() time.Time { return now }

	resp, body := e.do(t, http.MethodPost, "/v1/transcript", `{"speaker":"ana","text":"budget first"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.JSONEq(t, `{"quiet":false,"override":false}`, string(body))

	resp, body = e.do(t, http.MethodPost, "/v1/transcript", `{"speaker":"ben","text":"please be quiet for a bit"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.JSONEq(t, `{"quiet":true,"override":false}`, string(body))
	assert.True(t, e.session.QuietUntil().After(now))

	resp, body = e.do(t, http.MethodPost, "/v1/transcript", `{"speaker":"host","text":"no, keep going"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.JSONEq(t, `{"quiet":false,"override":true}`, string(body))
	assert.True(t, e.session.OverrideUntil().Equal(now.Add(state.DefaultOverride)))

	in := e.session.TickInput(now)
	require.Len(t, in.Window, 3)

	resp, _ = e.do(t, http.MethodPost, "/v1/transcript", `{"speaker":"ana","text":"   "}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = e.do(t, http.MethodPost, "/v1/transcript", `{"speaker":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPutContext(t *testing.T) {
	e := newEnv(t, nil)

	resp, body := e.do(t, http.MethodPut, "/v1/context", `{"current_topic":"budget","agenda_title":"weekly"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"current_topic":"budget","agenda_title":"weekly"}`, string(body))
	assert.Equal(t, "budget", e.session.PromptContext()[state.KeyCurrentTopic])

	resp, _ = e.do(t, http.MethodPut, "/v1/context", `{"current_topic":3}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func dialWS(t *testing.T, e env, participant string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(e.http.URL, "http") + "/v1/ws?participant=" + participant
	conn, resp, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) event.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var env event.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestWS_SnapshotOnConnect(t *testing.T) {
	e := newEnv(t, nil)
	conn := dialWS(t, e, "ana")

	env := readEnvelope(t, conn)
	require.Equal(t, event.TopicState, env.Type)
	var snap state.Snapshot
	require.NoError(t, env.Decode(&snap))
	assert.Equal(t, "sess-1", snap.SessionID)
}

func TestWS_ControlAndBroadcast(t *testing.T) {
	e := newEnv(t, nil)
	observer := dialWS(t, e, "observer")
	readEnvelope(t, observer)

	sender := dialWS(t, e, "host")
	readEnvelope(t, sender)

	require.NoError(t, sender.WriteMessage(websocket.TextMessage, []byte(`{"type":"set_style","style":"gentle"}`)))

	env := readEnvelope(t, observer)
	require.Equal(t, event.TopicState, env.Type)
	var snap state.Snapshot
	require.NoError(t, env.Decode(&snap))
	assert.Equal(t, style.Gentle, snap.Style)
	assert.Equal(t, uint64(1), snap.Generation)
	assert.Equal(t, style.Gentle, e.session.Style())
}

func TestWS_ControlBurstArrivesInOrder(t *testing.T) {
	e := newEnv(t, nil)
	observer := dialWS(t, e, "observer")
	readEnvelope(t, observer)

	sender := dialWS(t, e, "host")
	readEnvelope(t, sender)

	burst := []style.Style{style.Gentle, style.Aggressive, style.Moderate, style.Gentle, style.Aggressive}
	for _, st := range burst {
		require.NoError(t, sender.WriteMessage(websocket.TextMessage, []byte(`{"type":"set_style","style":"`+string(st)+`"}`)))
	}

	for i, st := range burst {
		env := readEnvelope(t, observer)
		require.Equal(t, event.TopicState, env.Type)
		var snap state.Snapshot
		require.NoError(t, env.Decode(&snap))
		assert.Equal(t, uint64(i+1), snap.Generation)
		assert.Equal(t, st, snap.Style)
	}
	assert.Equal(t, style.Aggressive, e.session.Style())
}

func TestStaleFilter(t *testing.T) {
	snap := func(gen uint64) event.Envelope {
		data, _ := json.Marshal(state.Snapshot{Type: state.SnapshotType, Generation: gen})
		return event.Envelope{Type: event.TopicState, Data: data}
	}
	var f staleFilter
	assert.True(t, f.fresh(snap(2)))
	assert.True(t, f.fresh(snap(2)), "same generation carries tick updates")
	assert.False(t, f.fresh(snap(1)))
	assert.True(t, f.fresh(event.Envelope{Type: event.TopicIntervention, Data: []byte(`{"generation":0}`)}))
	assert.True(t, f.fresh(snap(3)))
	assert.False(t, f.fresh(snap(2)))
}

func TestWS_UnknownStyleReplied(t *testing.T) {
	e := newEnv(t, nil)
	conn := dialWS(t, e, "ana")
	readEnvelope(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"set_style","style":"loud"}`)))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var frame errorFrame
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "error", frame.Type)
	assert.Equal(t, ErrCodeUnknownStyle, frame.Code)
	assert.Equal(t, style.Moderate, e.session.Style())
}

func TestWS_ShutdownClosesSockets(t *testing.T) {
	e := newEnv(t, nil)
	conn := dialWS(t, e, "ana")
	readEnvelope(t, conn)

	require.NoError(t, e.srv.Shutdown(context.Background()))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestOriginAllowed(t *testing.T) {
	sess, err := state.New(state.Options{})
	require.NoError(t, err)
	cfg := DefaultConfig()
	cfg.AllowedOrigins = []string{"https://app.example"}
	srv := New(cfg, sess, nil, nil, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "http://ctl.example/v1/ws", nil)
	assert.True(t, srv.originAllowed(req), "no origin header")

	req.Header.Set("Origin", "https://app.example")
	assert.True(t, srv.originAllowed(req))

	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, srv.originAllowed(req))

	req.Header.Set("Origin", "http://ctl.example")
	assert.True(t, srv.originAllowed(req), "same host")
}
