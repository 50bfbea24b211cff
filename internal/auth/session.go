package auth

import (
	"context"

	"github.com/go-logr/logr"

	"typingschool/identity/internal/crypto"
)

// Session is the identity claim carried by a valid token. It is never stored
// server side.
type Session struct {
	UserID int64  `json:"userId"`
	Role   Role   `json:"role"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
}

// Resolver turns the token on a transport into a session.
type Resolver struct {
	codec *Codec
	log   logr.Logger
}

func NewResolver(codec *Codec, log logr.Logger) *Resolver {
	return &Resolver{codec: codec, log: log}
}

// Resolve returns nil when the transport carries no token or a token that does
// not decode. The decode failure is only logged.
func (r *Resolver) Resolve(t Transport) *Session {
	if t == nil {
		return nil
	}
	token, ok := t.SessionToken()
	if !ok {
		return nil
	}
	session, err := r.codec.Decode(token)
	if err != nil {
		r.log.V(1).Info("session token rejected", "reason", err.Error(), "fingerprint", crypto.Fingerprint(token))
		return nil
	}
	return &session
}

type sessionKey struct{}

func WithSession(ctx context.Context, session *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, session)
}

func SessionFromContext(ctx context.Context) *Session {
	session, _ := ctx.Value(sessionKey{}).(*Session)
	return session
}
