package ggapp

import (
	"time"

	"golang.org/x/oauth2"
)

// Session is the connection state of one running process. The caller owns it and passes
// it to every operation; the zero value is a disconnected session.
type Session struct {
	token *oauth2.Token
}

// NewSession returns a session holding tok. A nil tok gives a disconnected session.
func NewSession(tok *oauth2.Token) *Session {
	return &Session{token: tok}
}

// Authenticated reports whether the session holds a token that has not expired.
func (s *Session) Authenticated() bool {
	return s != nil && s.token != nil && s.token.Valid()
}

// Token returns the session token, or nil.
func (s *Session) Token() *oauth2.Token {
	if s == nil {
		return nil
	}
	return s.token
}

// Expiry returns when the session token expires; zero when unknown or disconnected.
func (s *Session) Expiry() time.Time {
	if s == nil || s.token == nil {
		return time.Time{}
	}
	return s.token.Expiry
}

func (s *Session) set(tok *oauth2.Token) { s.token = tok }

func (s *Session) clear() { s.token = nil }

// redact keeps just enough of a token to recognize it in logs.
func redact(token string) string {
	if len(token) <= 8 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
