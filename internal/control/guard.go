package control

import (
	"crypto/subtle"
	"fmt"

	"github.com/tidwall/gjson"
)

// AllowFunc decides whether a participant may send a control message.
type AllowFunc func(participant string, payload []byte) bool

// Guard wraps h so that messages failing allow are rejected with ErrForbidden
// before they reach the controller. A nil allow lets everything through.
func Guard(h Handler, allow AllowFunc) Handler {
	if allow == nil {
		return h
	}
	return guarded{next: h, allow: allow}
}

type guarded struct {
	next  Handler
	allow AllowFunc
}

func (g guarded) HandleMessage(participant string, payload []byte) (Result, error) {
	if !g.allow(participant, payload) {
		return Result{}, fmt.Errorf("%w: participant %q", ErrForbidden, participant)
	}
	return g.next.HandleMessage(participant, payload)
}

// RequireHostToken allows messages whose host_token field equals token.
// An empty token allows everything.
func RequireHostToken(token string) AllowFunc {
	if token == "" {
		return nil
	}
	return func(_ string, payload []byte) bool {
		got := gjson.GetBytes(payload, "host_token")
		if got.Type != gjson.String {
			return false
		}
		return subtle.ConstantTimeCompare([]byte(got.Str), []byte(token)) == 1
	}
}

// AllowParticipants allows only the named participants.
func AllowParticipants(names ...string) AllowFunc {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return func(participant string, _ []byte) bool {
		_, ok := set[participant]
		return ok
	}
}
