package transport

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/danielpatrickdp/facilitator/go-controller/internal/control"
	"github.com/danielpatrickdp/facilitator/go-controller/internal/event"
	"github.com/danielpatrickdp/facilitator/go-controller/internal/state"
	"github.com/danielpatrickdp/facilitator/go-controller/internal/style"
)

// HeaderParticipant identifies the sender of an HTTP control message.
const HeaderParticipant = "X-Participant"

type healthResponse struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", SessionID: s.session.ID()})
}

func (s *Server) getSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Snapshot(s.now()))
}

// postControl accepts a control message. Dropped and ignored messages are
// still accepted; only an unknown style or a guard refusal is an error.
func (s *Server) postControl(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxMessageBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, ErrCodeInvalidRequest, err.Error())
		return
	}
	participant := participantOf(r)
	res, err := s.control.HandleMessage(participant, body)
	if err != nil {
		writeControlError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

func writeControlError(w http.ResponseWriter, err error) {
	status, code := controlError(err)
	writeError(w, status, code, err.Error())
}

// controlError maps a control failure to an HTTP status and error code.
func controlError(err error) (int, string) {
	switch {
	case errors.Is(err, style.ErrUnknownStyle):
		return http.StatusUnprocessableEntity, ErrCodeUnknownStyle
	case errors.Is(err, control.ErrForbidden):
		return http.StatusForbidden, ErrCodePermissionDenied
	}
	return http.StatusInternalServerError, ErrCodeInternalError
}

type transcriptRequest struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

func (s *Server) postTranscript(w http.ResponseWriter, r *http.Request) {
	var req transcriptRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.cfg.MaxMessageBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid transcript line: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "text is required")
		return
	}

	now := s.now()
	sig := s.session.AddUtterance(req.Speaker, req.Text, now)
	if sig.Quiet {
		s.log.Info().Str("speaker", req.Speaker).Time("until", s.session.QuietUntil()).Msg("quiet requested")
	}
	if sig.Override {
		s.log.Info().Str("speaker", req.Speaker).Time("until", s.session.OverrideUntil()).Msg("override grace opened")
	}
	if sig.Quiet || sig.Override {
		s.publishSnapshot()
	}
	writeJSON(w, http.StatusAccepted, sig)
}

func (s *Server) putContext(w http.ResponseWriter, r *http.Request) {
	var pc state.PromptContext
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.cfg.MaxMessageBytes)).Decode(&pc); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "context must be an object of strings: "+err.Error())
		return
	}
	s.session.SetPromptContext(pc)
	s.log.Info().Strs("keys", pc.Keys()).Msg("prompt context replaced")
	writeJSON(w, http.StatusOK, s.session.PromptContext())
}

func (s *Server) publishSnapshot() {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(event.TopicState, s.session.Snapshot(s.now())); err != nil {
		s.log.Warn().Err(err).Msg("publish snapshot")
	}
}

func participantOf(r *http.Request) string {
	if p := strings.TrimSpace(r.Header.Get(HeaderParticipant)); p != "" {
		return p
	}
	if p := strings.TrimSpace(r.URL.Query().Get("participant")); p != "" {
		return p
	}
	return "anonymous"
}
