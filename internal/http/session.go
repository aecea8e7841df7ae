package http

import (
	"context"
	"net/http"
	"strings"

	"feedesk/internal/core"
	applog "feedesk/internal/log"
)

// The identity provider in front of the API authenticates the caller and
// forwards who they are in these headers.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

type sessionKey struct{}

type sessionHandler func(w http.ResponseWriter, r *http.Request, session core.Session)

func sessionFromRequest(r *http.Request) (core.Session, bool) {
	userID := sanitizeInput(r.Header.Get(HeaderUserID))
	role := core.Role(strings.ToLower(sanitizeInput(r.Header.Get(HeaderUserRole))))
	if userID == "" || !role.Valid() {
		return core.Session{}, false
	}
	return core.Session{UserID: userID, Role: role}, true
}

// SessionFromContext returns the session attached by the auth wrappers.
func SessionFromContext(ctx context.Context) (core.Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(core.Session)
	return s, ok
}

// withSession rejects requests without a session (401) or whose role is not
// accepted (403), then passes the session to next.
func (s *Server) withSession(accept func(core.Role) bool, next sessionHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, ok := sessionFromRequest(r)
		if !ok {
			writeError(w, r, errUnauthenticated)
			return
		}
		if !accept(session.Role) {
			writeError(w, r, errWrongRole)
			return
		}
		logger := applog.FromContext(r.Context()).With(applog.FieldUserID, session.UserID, applog.FieldRole, string(session.Role))
		ctx := applog.NewContext(context.WithValue(r.Context(), sessionKey{}, session), logger)
		next(w, r.WithContext(ctx), session)
	})
}

func (s *Server) student(next sessionHandler) http.Handler {
	return s.withSession(func(r core.Role) bool { return r == core.RoleStudent }, next)
}

func (s *Server) admin(next sessionHandler) http.Handler {
	return s.withSession(func(r core.Role) bool { return r == core.RoleAdmin }, next)
}

func (s *Server) authenticated(next sessionHandler) http.Handler {
	return s.withSession(func(core.Role) bool { return true }, next)
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
