package testutil

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"sabha/internal/platform/middleware"
)

// WithMemberID adds a member ID to the request context, simulating what the
// auth middleware does for authenticated requests. Invalid UUIDs are ignored.
func WithMemberID(req *http.Request, memberID string) *http.Request {
	if _, err := uuid.Parse(memberID); err != nil {
		return req
	}
	ctx := context.WithValue(req.Context(), middleware.ContextKeyMemberID, memberID)
	return req.WithContext(ctx)
}

// WithAuth adds both member ID and login session ID to the request context,
// the typical state for an authenticated request. Invalid IDs are silently
// ignored.
func WithAuth(req *http.Request, memberID, sessionID string) *http.Request {
	ctx := req.Context()
	if _, err := uuid.Parse(memberID); err == nil {
		ctx = context.WithValue(ctx, middleware.ContextKeyMemberID, memberID)
	}
	if _, err := uuid.Parse(sessionID); err == nil {
		ctx = context.WithValue(ctx, middleware.ContextKeySessionID, sessionID)
	}
	return req.WithContext(ctx)
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	ctx := context.WithValue(req.Context(), key, value)
	return req.WithContext(ctx)
}
