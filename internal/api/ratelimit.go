package api

import (
	"net"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// rateLimited is a huma middleware that throttles an operation per client IP.
// Returns 429 Too Many Requests when the limit is exceeded.
func (s *Server) rateLimited(ctx huma.Context, next func(huma.Context)) {
	if s.authRateLimiter == nil {
		next(ctx)
		return
	}

	key := s.clientIP(ctx.Header("X-Forwarded-For"), ctx.Header("X-Real-IP"), ctx.RemoteAddr())
	if !s.authRateLimiter.Allow(key) {
		u := ctx.URL()
		s.logger.WarnContext(ctx.Context(), "rate limit exceeded",
			"ip", key,
			"path", u.Path,
		)
		_ = huma.WriteErr(s.api, ctx, http.StatusTooManyRequests, "too many requests, try again later")
		return
	}

	next(ctx)
}

// clientIP picks the client address for a request. Forwarding headers are
// client-controlled, so they are read only behind a trusted proxy.
func (s *Server) clientIP(forwardedFor, realIP, remoteAddr string) string {
	if !s.trustProxy {
		return peerIP(remoteAddr)
	}
	return forwardedIP(forwardedFor, realIP, remoteAddr)
}

// forwardedIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the peer.
func forwardedIP(forwardedFor, realIP, remoteAddr string) string {
	if first, _, _ := strings.Cut(forwardedFor, ","); strings.TrimSpace(first) != "" {
		return strings.TrimSpace(first)
	}
	if realIP = strings.TrimSpace(realIP); realIP != "" {
		return realIP
	}
	return peerIP(remoteAddr)
}

// peerIP strips the port from a connection address.
func peerIP(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}
