package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/libris/libris-server/internal/access"
	"github.com/libris/libris-server/internal/domain"
	domainerrors "github.com/libris/libris-server/internal/errors"
	"github.com/libris/libris-server/internal/logger"
)

// accessTokenCookie is the cookie login and setup set, accepted in place of the header.
const accessTokenCookie = "access_token"

// ctxKey is the type for context keys to avoid collisions.
type ctxKey int

const authKey ctxKey = iota

// authState is what authMiddleware learned about the caller.
// A request without a token has neither field set.
type authState struct {
	principal *domain.Principal
	err       error
}

// GetPrincipal returns the authenticated principal, or nil for anonymous callers
// and callers whose token was rejected.
func GetPrincipal(ctx context.Context) *domain.Principal {
	st, _ := ctx.Value(authKey).(authState)
	return st.principal
}

// authMiddleware resolves the access token of the request, if any, into a principal.
// It never rejects a request itself: a bad token is remembered and reported by
// the handler, so public operations stay reachable without credentials.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := accessToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		p, err := s.services.Auth.Authenticate(r.Context(), token)
		ctx := context.WithValue(r.Context(), authKey, authState{principal: p, err: err})
		if p != nil {
			ctx = logger.WithActor(ctx, string(p.Role()), p.ID())
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// accessToken reads the bearer token, falling back to the access_token cookie.
func accessToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if c, err := r.Cookie(accessTokenCookie); err == nil {
		return c.Value
	}
	return ""
}

// actor returns the principal to run op as.
//
// A presented but invalid token fails every operation, public or not. Anonymous
// callers get through to public operations only; the services decide whether
// an authenticated role is allowed.
func (s *Server) actor(ctx context.Context, op access.Operation) (*domain.Principal, error) {
	st, _ := ctx.Value(authKey).(authState)
	if st.err != nil {
		return nil, st.err
	}
	if st.principal == nil && !access.IsPublic(op) {
		return nil, domainerrors.ErrUnauthenticated
	}
	return st.principal, nil
}

// authenticated returns the caller's principal or ErrUnauthenticated.
func (s *Server) authenticated(ctx context.Context) (*domain.Principal, error) {
	st, _ := ctx.Value(authKey).(authState)
	if st.err != nil {
		return nil, st.err
	}
	if st.principal == nil {
		return nil, domainerrors.ErrUnauthenticated
	}
	return st.principal, nil
}
