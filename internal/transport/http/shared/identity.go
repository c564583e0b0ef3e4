package shared

import (
	"context"

	"github.com/google/uuid"

	"sabha/internal/platform/middleware"
	dErrors "sabha/pkg/domain-errors"
)

// MemberID returns the authenticated member's UUID from the request
// context. RequireAuth guarantees presence; a parse failure means the token
// carried garbage and is treated as unauthenticated.
func MemberID(ctx context.Context) (uuid.UUID, error) {
	raw := middleware.GetMemberID(ctx)
	if raw == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeUnauthorized, "no authenticated member")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeUnauthorized, "malformed member identity")
	}
	return id, nil
}

// PathUUID parses a chi URL parameter as a UUID.
func PathUUID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, "malformed id in path")
	}
	return id, nil
}
