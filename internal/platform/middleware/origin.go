package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/mssola/useragent"
)

type contextKeyClientIP struct{}
type contextKeyClientDevice struct{}

var (
	ContextKeyClientIP     = contextKeyClientIP{}
	ContextKeyClientDevice = contextKeyClientDevice{}
)

// GetClientIP retrieves the network origin recorded for this request.
func GetClientIP(ctx context.Context) string {
	ip, ok := ctx.Value(ContextKeyClientIP).(string)
	if !ok {
		return ""
	}
	return ip
}

// GetClientDevice retrieves the parsed browser/platform summary.
func GetClientDevice(ctx context.Context) string {
	device, ok := ctx.Value(ContextKeyClientDevice).(string)
	if !ok {
		return ""
	}
	return device
}

// WithClientIP injects a network origin into a context.
// Useful for service unit tests that don't run the full HTTP middleware chain.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ContextKeyClientIP, ip)
}

// Origin records the caller's network origin and a coarse device summary.
// Vote submissions persist both as audit metadata.
func Origin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), ContextKeyClientIP, clientIP(r))
		if ua := r.Header.Get("User-Agent"); ua != "" {
			parsed := useragent.New(ua)
			browser, version := parsed.Browser()
			summary := strings.TrimSpace(browser + " " + version + " / " + parsed.OS())
			ctx = context.WithValue(ctx, ContextKeyClientDevice, summary)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func clientIP(r *http.Request) string {
	// First hop in X-Forwarded-For is the original client when the proxy is
	// trusted; fall back to the socket address.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.IndexByte(xff, ','); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
